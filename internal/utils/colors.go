package utils

// Terminal color codes using ANSI escape sequences
const (
	ResetColor   = "\033[0m"
	RedColor     = "\033[31m" // errors, failed uploads
	GreenColor   = "\033[32m" // success, published URLs
	YellowColor  = "\033[33m" // warnings
	BlueColor    = "\033[34m" // progress
	MagentaColor = "\033[35m" // emphasis
	CyanColor    = "\033[36m" // debug
)

// ColoredText wraps text with a color code and reset at the end
func ColoredText(text string, color string) string {
	return color + text + ResetColor
}

// Success returns green-colored text for successful results
func Success(text string) string {
	return ColoredText(text, GreenColor)
}

// Warning returns yellow-colored text for warnings
func Warning(text string) string {
	return ColoredText(text, YellowColor)
}

// Error returns red-colored text for failures
func Error(text string) string {
	return ColoredText(text, RedColor)
}

// Highlight returns magenta-colored text for emphasized values
func Highlight(text string) string {
	return ColoredText(text, MagentaColor)
}
