// Voucher code generation. A code encodes the issue date (month and weekday
// letters), one random letter, and a zero padded sequence number, e.g.
// "HDX0042" for a voucher issued on a Wednesday in August with sequence 42.
//
// The sequence value must come from a serialized source (the
// voucher_sequences row, read FOR UPDATE by the store) so concurrent
// issuance cannot produce the same code. The unique index on vouchers.code
// is the last line of defense: on a duplicate key the caller retries with a
// fresh sequence value.

package voucher

import (
	"fmt"
	"math/rand"
	"time"
)

const codeSeqMod = 10000 // sequence wraps at 4 digits, the letters keep codes apart across wraps

func monthLetter(t time.Time) byte {
	return byte('A' + int(t.Month()) - 1) // Jan=A .. Dec=L
}

func weekdayLetter(t time.Time) byte {
	return byte('A' + int(t.Weekday())) // Sun=A .. Sat=G
}

func formatCode(t time.Time, letter byte, seq int) string {
	return fmt.Sprintf("%c%c%c%04d", monthLetter(t), weekdayLetter(t), letter, seq%codeSeqMod)
}

// FormatCode builds the code for one sequence value.
func FormatCode(t time.Time, seq int) string {
	letter := byte('A' + rand.Intn(26))
	return formatCode(t, letter, seq)
}
