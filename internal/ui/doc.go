// Package ui provides semantic text formatting for terminal output.
//
// Each formatter names a kind of content rather than a color:
//
//	ui.Code.Sprint("tecza conversation create bob")
//	ui.Path.Sprint("~/.local/share/tecza/vault.json")
//	ui.Highlight.Sprint("alice@example.com")
//	ui.Sender.Sprint("bob")
//	ui.Unreadable.Sprint("[unable to decrypt message]")
//
// Colors are disabled when NO_COLOR is set or the terminal cannot show
// them. The formatters then fall back to plain decorations: backticks for
// Code, quotes for Highlight, angle brackets for Sender and parentheses
// for Muted.
package ui
