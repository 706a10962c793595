package rewrite

import (
	"fmt"
	"strings"
)

// ResourceKind tells the replay service how to serve a rewritten target.
type ResourceKind int

const (
	KindPage ResourceKind = iota
	KindImage
	KindStylesheet
	KindScript
	KindIframe
)

var kindModifiers = [...]string{
	KindPage:       "",
	KindImage:      "im_",
	KindStylesheet: "cs_",
	KindScript:     "js_",
	KindIframe:     "if_",
}

var kindCodes = map[string]ResourceKind{
	"an": KindPage,
	"im": KindImage,
	"cs": KindStylesheet,
	"js": KindScript,
	"if": KindIframe,
}

// Modifier returns the literal inserted after the timestamp in a replay URL.
func (k ResourceKind) Modifier() string {
	if k < 0 || int(k) >= len(kindModifiers) {
		return ""
	}
	return kindModifiers[k]
}

func (k ResourceKind) String() string {
	switch k {
	case KindPage:
		return "page"
	case KindImage:
		return "image"
	case KindStylesheet:
		return "stylesheet"
	case KindScript:
		return "script"
	case KindIframe:
		return "iframe"
	}
	return fmt.Sprintf("ResourceKind(%d)", int(k))
}

// ParseKind maps a selector type code (an, im, cs, js, if) to its kind.
func ParseKind(code string) (ResourceKind, error) {
	k, ok := kindCodes[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return 0, fmt.Errorf("unknown resource kind %q", code)
	}
	return k, nil
}
