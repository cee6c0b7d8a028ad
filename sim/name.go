package sim

import (
	"strconv"
	"strings"
)

// A Named object is an object that has a name.
type Named interface {
	Name() string
}

// NameMustBeValid panics if the name does not follow the naming convention.
// Names are organized hierarchically with dot-separated tokens. Each token
// must be non-empty, start with a capital letter, and must not contain
// underscores, dashes, or quotes. Elements in a series use square-bracket
// index notation, as in "GPU.Partition[3].L2".
func NameMustBeValid(name string) {
	tokens := strings.Split(name, ".")
	for _, token := range tokens {
		tokenMustBeValid(name, token)
	}
}

func tokenMustBeValid(name, token string) {
	elemName, indexPart, _ := strings.Cut(token, "[")

	if elemName == "" {
		panic("name " + name + " is not valid: element must not be empty")
	}

	for _, c := range []string{"_", "\"", "'", "-"} {
		if strings.Contains(elemName, c) {
			panic("name " + name + " is not valid: element must not contain " + c)
		}
	}

	if elemName[0] < 'A' || elemName[0] > 'Z' {
		panic("name " + name +
			" is not valid: element must start with a capital letter")
	}

	if indexPart != "" {
		indexMustBeValid(name, indexPart)
	}
}

func indexMustBeValid(name, indexPart string) {
	for _, index := range strings.Split(indexPart, "[") {
		if !strings.HasSuffix(index, "]") {
			panic("name " + name + " is not valid: bracket must match")
		}

		_, err := strconv.Atoi(strings.TrimSuffix(index, "]"))
		if err != nil {
			panic("name " + name + " is not valid: index must be integer")
		}
	}
}

// BuildName builds a name from a parent name and an element name.
func BuildName(parentName, elementName string) string {
	if parentName == "" {
		return elementName
	}

	return parentName + "." + elementName
}

// BuildNameWithIndex builds a name from a parent name, an element name, and
// an index.
func BuildNameWithIndex(parentName, elementName string, index int) string {
	return BuildName(parentName,
		elementName+"["+strconv.Itoa(index)+"]")
}
