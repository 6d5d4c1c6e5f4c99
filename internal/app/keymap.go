package app

// Key binding constants used in handleKey.
const (
	KeyQuit      = "q"
	KeyQuitUpper = "Q"
	KeyCtrlC     = "ctrl+c"
	KeyEsc       = "esc"
	KeySpace     = " "
	KeyRestart   = "r"
	KeyUp        = "up"
	KeyDown      = "down"
)
