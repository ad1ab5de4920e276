package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Snippet renders err with the offending input line beneath it, when the
// error carries one:
//
//	line 3: [scan] format in bdrv_foo: parameter "BlockDriverState" has no name
//
//	   3 | int generated_co_wrapper bdrv_foo(BlockDriverState);
//
// Errors without position information are returned as their plain message.
func Snippet(err error) string {
	var e *Error
	if !stderrors.As(err, &e) || e.Line == 0 || e.Source == "" {
		return err.Error()
	}

	var b strings.Builder
	b.WriteString(err.Error())
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%4d | %s", e.Line, strings.TrimRight(e.Source, "\r\n"))
	return b.String()
}
