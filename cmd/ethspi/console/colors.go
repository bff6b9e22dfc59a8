package console

import "github.com/fatih/color"

var (
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	Yellow = color.New(color.FgYellow).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
	Bold   = color.New(color.Bold).SprintFunc()
)

// Link renders a link state with its pictogram, green while the link is up.
func Link(state any, up bool) string {
	if up {
		return PictoLink + " " + Green(state)
	}
	return PictoBroken + " " + Red(state)
}
