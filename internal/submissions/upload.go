package submissions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aliuyar1234/holidaytree/internal/imaging"
	"github.com/aliuyar1234/holidaytree/internal/invites"
	"github.com/aliuyar1234/holidaytree/internal/metrics"
)

var (
	// ErrMalformedUpload is returned when the request is not a readable multipart form
	ErrMalformedUpload = errors.New("malformed upload")
)

// Upload is the parsed submit form: the raw photo plus the crop chosen in the browser.
type Upload struct {
	Invite string
	Name   string
	Phone  string
	Photo  []byte
	Crop   imaging.Request
}

// ParseUpload reads the multipart submit form. The invite code may come from the form or the
// query string.
func ParseUpload(w http.ResponseWriter, r *http.Request, limits UploadLimits) (Upload, error) {
	if err := limits.ValidateTotalSize(r.ContentLength); err != nil {
		return Upload{}, err
	}
	r.Body = http.MaxBytesReader(w, r.Body, limits.MaxTotalBytes)

	if err := r.ParseMultipartForm(limits.MaxTotalBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge) {
			return Upload{}, fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, limits.MaxTotalBytes)
		}
		return Upload{}, fmt.Errorf("%w: %v", ErrMalformedUpload, err)
	}
	defer r.MultipartForm.RemoveAll()

	up := Upload{
		Invite: r.FormValue("invite"),
		Name:   r.FormValue("name"),
		Phone:  r.FormValue("phone"),
	}
	if up.Invite == "" {
		up.Invite = r.URL.Query().Get("invite")
	}

	file, header, err := r.FormFile("photo")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		return Upload{}, fmt.Errorf("%w: %v", ErrMalformedUpload, err)
	default:
		defer file.Close()
		if err := limits.ValidatePhotoSize(header.Size); err != nil {
			return Upload{}, err
		}
		up.Photo, err = io.ReadAll(io.LimitReader(file, limits.MaxPhotoBytes+1))
		if err != nil {
			return Upload{}, fmt.Errorf("%w: %v", ErrMalformedUpload, err)
		}
		if err := limits.ValidatePhotoSize(int64(len(up.Photo))); err != nil {
			return Upload{}, err
		}
	}

	up.Crop, err = parseCrop(r)
	if err != nil {
		return Upload{}, err
	}
	return up, nil
}

// parseCrop reads the crop_* fields. A form without crop_width carries no crop.
func parseCrop(r *http.Request) (imaging.Request, error) {
	var (
		req  imaging.Request
		errs []error
	)
	num := func(field string) float64 {
		v := strings.TrimSpace(r.FormValue(field))
		if v == "" {
			return 0
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
		return f
	}

	req.Display = imaging.Size{Width: num("display_width"), Height: num("display_height")}
	req.PixelRatio = num("pixel_ratio")

	if strings.TrimSpace(r.FormValue("crop_width")) != "" {
		unit := imaging.Unit(r.FormValue("crop_unit"))
		if unit == "" {
			unit = imaging.UnitPixels
		}
		if unit != imaging.UnitPixels && unit != imaging.UnitPercent {
			errs = append(errs, fmt.Errorf("crop_unit: unknown unit %q", unit))
		}
		req.Crop = &imaging.Rect{
			Unit:   unit,
			X:      num("crop_x"),
			Y:      num("crop_y"),
			Width:  num("crop_width"),
			Height: num("crop_height"),
		}
	}

	if len(errs) > 0 {
		return imaging.Request{}, fmt.Errorf("%w: %w", imaging.ErrCropIncomplete, errors.Join(errs...))
	}
	return req, nil
}

// Intake runs a parsed upload through validation, crop-and-encode and the Writer.
type Intake struct {
	invites *invites.Service
	writer  *Writer
}

func NewIntake(inv *invites.Service, writer *Writer) *Intake {
	return &Intake{invites: inv, writer: writer}
}

// Accept validates the form fields first, so a bad form never reaches the store, then checks the
// invite, encodes the crop and stores the submission.
func (in *Intake) Accept(ctx context.Context, up Upload) (Result, error) {
	name, phone, err := CheckFields(up.Name, up.Phone)
	if err != nil {
		return Result{}, err
	}
	if len(up.Photo) == 0 {
		return Result{}, &ValidationError{Field: "photo", Message: "Please select a photo"}
	}
	if up.Crop.Crop == nil {
		return Result{}, imaging.ErrCropIncomplete
	}

	v, err := in.invites.Validate(ctx, up.Invite)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	encoded, err := imaging.Process(up.Photo, up.Crop)
	metrics.EncodeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return Result{}, err
	}

	return in.writer.Submit(ctx, Request{
		InviteID: v.Invite.ID,
		Name:     name,
		Phone:    phone,
		Image:    encoded,
	})
}
