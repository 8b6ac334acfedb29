package model

// Button is an inline keyboard button: a label and the callback
// payload delivered back when the user presses it.
type Button struct {
	Label string
	Data  string
}

// Keyboard is a grid of inline buttons, one slice per row.
type Keyboard [][]Button

// Row builds a single keyboard row.
func Row(buttons ...Button) []Button {
	return buttons
}
