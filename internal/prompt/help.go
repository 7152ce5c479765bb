package prompt

// HelpText describes one prompt field.
type HelpText struct {
	Title       string
	Description string
}

// Texts holds the title and description shown under each field, by key.
var Texts = map[string]HelpText{
	"username": {
		Title:       "Enter Mobius3D username",
		Description: "The account used to log in to the Mobius3D web interface.",
	},
	"password": {
		Title:       "Enter password",
		Description: "Not echoed. A wrong password is only noticed when the plan list fails to load.",
	},
	"search": {
		Title:       "Enter all or part of patient name or ID to download",
		Description: "Case-sensitive. Matches any patient whose name or ID contains it.",
	},
	"dest": {
		Title:       "Enter the directory to download files to",
		Description: "Must exist. One folder per plan name is created inside it.",
	},
	"report": {
		Title:       "Save the statistics as YAML to",
		Description: "Leave blank to skip.",
	},
}

func title(key string) string       { return Texts[key].Title }
func description(key string) string { return Texts[key].Description }
