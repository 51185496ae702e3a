package format

import (
	"github.com/davecgh/go-spew/spew"

	"github.com/luma/respkit/protocol"
)

var dumper = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	DisableMethods:          true,
}

// Dump renders the full Go structure of v, for debugging the decoder itself.
func Dump(v protocol.Value) string {
	return dumper.Sdump(v)
}
