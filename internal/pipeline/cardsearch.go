package pipeline

import (
	"bytes"
	"encoding/json"
)

// cardSearchKeys are the key names the recursive search accepts, covering
// every spelling observed in upstream payloads.
var cardSearchKeys = map[string]bool{
	"last4":       true,
	"card_number": true,
	"card_last4":  true,
	"last_4":      true,
	"cardNumber":  true,
	"card":        true,
}

// searchCardFragment walks the raw payload depth-first in document order
// looking for any candidate key with an all-digit string value: longer than
// 4 digits yields the trailing 4, up to 4 digits is taken verbatim. The
// first hit wins and the search stops. Walking the raw bytes instead of a
// decoded map keeps the visit order stable; Go maps iterate randomly.
func searchCardFragment(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	type frame struct {
		isObject  bool
		expectKey bool
		key       string
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	var stack []frame
	for {
		tok, err := dec.Token()
		if err != nil {
			// io.EOF or malformed input; either way there is nothing
			// more to find.
			return "", false
		}

		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{', '[':
				stack = append(stack, frame{isObject: t == '{', expectKey: t == '{'})
			case '}', ']':
				stack = stack[:len(stack)-1]
				if len(stack) == 0 {
					return "", false
				}
				if top := &stack[len(stack)-1]; top.isObject {
					top.expectKey = true
				}
			}
		case string:
			if len(stack) == 0 {
				return "", false
			}
			top := &stack[len(stack)-1]
			if top.isObject && top.expectKey {
				top.key = t
				top.expectKey = false
				continue
			}
			if top.isObject {
				if cardSearchKeys[top.key] {
					if frag, ok := fragmentFromDigits(t); ok {
						return frag, true
					}
				}
				top.expectKey = true
			}
		default:
			// Number, bool or null value; nothing to match.
			if len(stack) == 0 {
				return "", false
			}
			if top := &stack[len(stack)-1]; top.isObject {
				top.expectKey = true
			}
		}
	}
}

// fragmentFromDigits applies the digit rules: all-digit strings longer than
// 4 characters yield their trailing 4 digits, all-digit strings of 1-4
// characters are used as-is.
func fragmentFromDigits(s string) (string, bool) {
	if s == "" || !allDigits(s) {
		return "", false
	}
	if len(s) > 4 {
		return s[len(s)-4:], true
	}
	return s, true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
