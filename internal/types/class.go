package types

import "fmt"

// Class is the per-sample event classification. The zero value is None.
type Class uint8

const (
	None Class = iota
	SWD        // spike-wave discharge
	IS         // intermediate sleep
	DS         // deep sleep
)

// Classes lists the annotated classes in code order. None is not included.
var Classes = []Class{SWD, IS, DS}

type classInfo struct {
	startTag string
	endTag   string
	name     string
}

var classTable = map[Class]classInfo{
	SWD: {startTag: "swd1", endTag: "swd2", name: "SWD"},
	IS:  {startTag: "is1", endTag: "is2", name: "IS"},
	DS:  {startTag: "ds1", endTag: "ds2", name: "DS"},
}

// Valid reports whether c is one of the four known classes
func (c Class) Valid() bool {
	return c <= DS
}

// StartTag returns the annotation tag that opens an interval of this class
func (c Class) StartTag() string {
	return classTable[c].startTag
}

// EndTag returns the annotation tag that closes an interval of this class
func (c Class) EndTag() string {
	return classTable[c].endTag
}

// String returns the display name used in reports
func (c Class) String() string {
	if c == None {
		return "None"
	}
	if info, ok := classTable[c]; ok {
		return info.name
	}
	return fmt.Sprintf("Class(%d)", uint8(c))
}

// ClassForStartTag maps a start tag such as "swd1" to its class.
func ClassForStartTag(tag string) (Class, bool) {
	for _, c := range Classes {
		if classTable[c].startTag == tag {
			return c, true
		}
	}
	return None, false
}

// ClassFromInt converts an integer label, as returned by a classifier or
// read from a tabular export, into a Class.
func ClassFromInt(v int) (Class, error) {
	if v < 0 || v > int(DS) {
		return None, fmt.Errorf("class %d out of range [0,%d]", v, DS)
	}
	return Class(v), nil
}
