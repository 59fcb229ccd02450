package view

import "strings"

type ListRenderInput struct {
	Len    int
	Start  int
	End    int
	Cursor int

	RenderRow func(index int, active bool) string
}

func RenderListBody(in ListRenderInput) string {
	if in.Len == 0 || in.Start >= in.End || in.Start < 0 {
		return ""
	}
	end := in.End
	if end > in.Len {
		end = in.Len
	}
	var b strings.Builder
	for i := in.Start; i < end; i++ {
		b.WriteString(in.RenderRow(i, i == in.Cursor))
		b.WriteString("\n")
	}
	return b.String()
}
