package model

// CallData frames a call: the 4-byte selector followed by the encoded
// arguments.
func CallData(sel Selector, args []byte) []byte {
	out := make([]byte, 0, len(sel)+len(args))
	out = append(out, sel[:]...)
	return append(out, args...)
}

// SplitCallData is the inverse of CallData.
func SplitCallData(data []byte) (Selector, []byte, error) {
	var s Selector
	if len(data) < len(s) {
		return s, nil, NewError(CodeInvalidArgument, "call data is %d bytes, shorter than a selector", len(data))
	}
	copy(s[:], data)
	return s, data[len(s):], nil
}
