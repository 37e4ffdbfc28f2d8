//go:build darwin

package input

import "golang.design/x/hotkey"

// Option and Command
var platformModifiers = map[string]hotkey.Modifier{
	"alt":     hotkey.ModOption,
	"opt":     hotkey.ModOption,
	"option":  hotkey.ModOption,
	"cmd":     hotkey.ModCmd,
	"command": hotkey.ModCmd,
	"super":   hotkey.ModCmd,
}
