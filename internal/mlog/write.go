package mlog

import "strings"

// String returns a log line as a string.
func String(
	ids []IconWithLabel,
	icons []Icon,
	text ...string,
) string {
	w := &strings.Builder{}

	for _, v := range ids {
		w.WriteString(v.String())
		w.WriteString("  ")
	}

	for _, v := range icons {
		w.WriteString(v.String())
		w.WriteByte(' ')
	}

	i := 0
	for _, v := range text {
		if v == "" {
			continue
		}

		w.WriteByte(' ')

		if i > 0 {
			w.WriteString(SeparatorIcon.String())
			w.WriteByte(' ')
		}

		w.WriteString(v)
		i++
	}

	return w.String()
}
