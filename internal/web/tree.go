package web

import (
	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/aliuyar1234/holidaytree/internal/submissions"
)

// Slot is one place on the tree. Photo is nil while the slot is empty.
type Slot struct {
	Position domain.Position
	Label    string
	Photo    *submissions.Photo
}

// Tree is the arranged set of approved photos.
type Tree struct {
	Star      Slot
	Ornaments []Slot
	// Extra holds photos that did not fit on the tree, in review order.
	Extra []submissions.Photo
	Count int
}

// Arrange places photos onto the tree. Photos are expected newest review first. Pinned
// positions win their slot; when two photos claim the same slot the first keeps it and the
// other is placed automatically. Unpinned photos fill the free slots in order, star first.
func Arrange(photos []submissions.Photo) Tree {
	slots := make([]Slot, 0, domain.OrnamentSlots+1)
	index := make(map[domain.Position]int, domain.OrnamentSlots+1)
	for i, pos := range domain.Positions() {
		slots = append(slots, Slot{Position: pos, Label: pos.Label()})
		index[pos] = i
	}

	var auto []submissions.Photo
	for _, p := range photos {
		i, ok := index[p.Position]
		if !ok || slots[i].Photo != nil {
			auto = append(auto, p)
			continue
		}
		photo := p
		slots[i].Photo = &photo
	}

	var extra []submissions.Photo
	next := 0
	for _, p := range auto {
		for next < len(slots) && slots[next].Photo != nil {
			next++
		}
		if next == len(slots) {
			extra = append(extra, p)
			continue
		}
		photo := p
		slots[next].Photo = &photo
	}

	return Tree{
		Star:      slots[0],
		Ornaments: slots[1:],
		Extra:     extra,
		Count:     len(photos),
	}
}
