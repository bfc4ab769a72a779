package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// techuiDefinition constrains CUE documents before they are exported. It
// mirrors the JSON schema loosely; the JSON schema remains authoritative.
const techuiDefinition = `
#Component: {
	prefix:  string
	desc?:   string
	extras?: [...string]
	file?:   =~"\\.bob$"
	macros?: [string]: string | number | bool
	filter?: string
}

#TechUI: {
	beamline: {
		dom?:       string
		short_dom?: string
		long_dom?:  string
		desc:       string
		url?:       string
	}
	components: [=~"^[A-Z0-9_]+$"]: #Component
	logging?: _
}
`

// exportCUE evaluates a CUE techui document and returns it as JSON, which
// the YAML decoder accepts unchanged.
func exportCUE(path string, data []byte) ([]byte, error) {
	ctx := cuecontext.New()
	definitions := ctx.CompileString(techuiDefinition, cue.Filename("techui_definitions.cue"))
	if err := definitions.Err(); err != nil {
		return nil, fmt.Errorf("compile techui definition: %w", err)
	}

	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compile cue %s: %w", path, err)
	}
	unified := definitions.LookupPath(cue.ParsePath("#TechUI")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate cue %s: %w", path, err)
	}
	out, err := unified.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("export cue %s: %w", path, err)
	}
	return out, nil
}
