/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package santa

import (
	"bufio"
	"io"
)

// WriteReport writes one "giver → recipient" line per pair.
func WriteReport(w io.Writer, pairs []Pair) error {
	bw := bufio.NewWriter(w)

	for _, p := range pairs {
		if _, err := bw.WriteString(p.Giver + " → " + p.Recipient + "\n"); err != nil {
			return err
		}
	}

	return bw.Flush()
}
