package wall

import (
	"math/rand"
	"time"
)

// Message is a guest entry on the wall. Messages are immutable once
// created; the only lifecycle operations are create and delete.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Color     string    `json:"color"`
	Timestamp time.Time `json:"timestamp"`
}

// Colors is the fixed palette a message color is drawn from when the
// client does not pick one. The color is assigned at creation time and
// stored, never recomputed.
var Colors = []string{
	"pink",
	"purple",
	"blue",
	"green",
	"yellow",
	"orange",
}

// RandomColor draws one entry from the palette.
func RandomColor() string {
	return Colors[rand.Intn(len(Colors))]
}
