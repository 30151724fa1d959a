package selector

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// operatorSpec describes how one RFC 6570 operator affects pattern
// conversion: the literal inserted before the expression's first
// variable, the separator joining multiple variables (or repeated
// exploded values), whether the variable's character class includes
// reserved/gen-delim characters, and whether each variable renders as
// a `name=value` pair (the form-style operators).
type operatorSpec struct {
	prefix        string
	separator     string
	allowReserved bool
	named         bool
}

var operatorSpecs = map[byte]operatorSpec{
	'+': {prefix: "", separator: ",", allowReserved: true},
	'#': {prefix: "#", separator: ",", allowReserved: true},
	'.': {prefix: ".", separator: ".", allowReserved: false},
	'/': {prefix: "/", separator: "/", allowReserved: false},
	';': {prefix: ";", separator: ";", allowReserved: false, named: true},
	'?': {prefix: "?", separator: "&", allowReserved: false, named: true},
	'&': {prefix: "&", separator: "&", allowReserved: false, named: true},
}

var simpleOperator = operatorSpec{prefix: "", separator: ",", allowReserved: false}

const unreservedClass = `A-Za-z0-9\-._~%`
const reservedExtraClass = `:/?#\[\]@!$&'()*+,;=`

// compiledTemplate converts an RFC 6570 level 1-4 template into an
// equivalent anchored regular expression.
func compiledTemplate(template string) (*regexp.Regexp, error) {
	var out strings.Builder
	out.WriteString("^")

	i := 0
	for i < len(template) {
		if template[i] != '{' {
			j := i
			for j < len(template) && template[j] != '{' {
				j++
			}
			out.WriteString(regexp.QuoteMeta(template[i:j]))
			i = j
			continue
		}

		end := strings.IndexByte(template[i:], '}')
		if end < 0 {
			return nil, fmt.Errorf("selector: unterminated template expression in %q", template)
		}
		expr := template[i+1 : i+end]
		i = i + end + 1

		segment, err := convertExpression(expr)
		if err != nil {
			return nil, err
		}
		out.WriteString(segment)
	}

	out.WriteString("$")
	return regexp.Compile(out.String())
}

// convertExpression converts the inside of one {...} template
// expression (operator plus comma-separated variable specs) into its
// regular-expression equivalent.
func convertExpression(expr string) (string, error) {
	if expr == "" {
		return "", fmt.Errorf("selector: empty template expression")
	}

	spec := simpleOperator
	varPart := expr
	if op, ok := operatorSpecs[expr[0]]; ok {
		spec = op
		varPart = expr[1:]
	}

	varSpecs := strings.Split(varPart, ",")
	groups := make([]string, 0, len(varSpecs))
	for _, vs := range varSpecs {
		group, err := convertVariable(vs, spec)
		if err != nil {
			return "", err
		}
		groups = append(groups, group)
	}

	if len(groups) == 0 {
		return "", nil
	}

	return regexp.QuoteMeta(spec.prefix) + strings.Join(groups, regexp.QuoteMeta(spec.separator)), nil
}

// convertVariable converts a single variable term (optionally carrying
// a ":n" substring-truncation modifier or a "*" explode modifier) into
// the piece of regular expression matching its instantiation.
func convertVariable(varSpec string, spec operatorSpec) (string, error) {
	name := varSpec
	exploded := false
	maxLen := 0

	if strings.HasSuffix(name, "*") {
		exploded = true
		name = strings.TrimSuffix(name, "*")
	} else if idx := strings.IndexByte(name, ':'); idx >= 0 {
		n, err := strconv.Atoi(name[idx+1:])
		if err != nil || n <= 0 {
			return "", fmt.Errorf("selector: invalid prefix length in variable %q", varSpec)
		}
		maxLen = n
		name = name[:idx]
	}
	_ = name // the variable name itself doesn't constrain matching; only its modifiers do

	class := unreservedClass
	if spec.allowReserved {
		class = unreservedClass + reservedExtraClass
	}

	var value string
	switch {
	case maxLen > 0:
		value = fmt.Sprintf("[%s]{1,%d}", class, maxLen)
	case exploded:
		value = fmt.Sprintf("(?:[%s]+(?:%s[%s]+)*)", class, regexp.QuoteMeta(spec.separator), class)
	default:
		value = fmt.Sprintf("[%s]+", class)
	}

	if spec.named {
		return regexp.QuoteMeta(name) + "=" + value, nil
	}
	return value, nil
}
