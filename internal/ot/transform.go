package ot

// Transform returns o' such that applying other then o' yields the same
// text as applying o then other' (other.Transform(o)), per spec.md §4.1.
// Transform is total: pairings with no defined rule return a clone of o.
func (o Operation) Transform(other Operation) Operation {
	if other.Type == Composite {
		result := o
		for _, child := range other.Children {
			result = result.Transform(child)
		}

		return result
	}

	if o.Type == Composite {
		children := make([]Operation, len(o.Children))
		for i, c := range o.Children {
			children[i] = c.Transform(other)
		}

		return Operation{
			Type: Composite, ID: o.ID, Source: o.Source, RelatedID: o.RelatedID,
			AuthorID: o.AuthorID, Children: children,
		}
	}

	switch {
	case o.IsInsert() && other.IsInsert():
		return transformInsertInsert(o, other)
	case o.IsDelete() && other.IsDelete():
		return transformDeleteDelete(o, other)
	case o.IsInsert() && other.IsDelete():
		return transformInsertVsDelete(o, other)
	case o.IsDelete() && other.IsInsert():
		return transformDeleteVsInsert(o, other)
	default:
		return o.Clone()
	}
}

// winsTie reports whether a should stay in place (and b shift right) when
// both target the same position: author-id lexicographic order, falling
// back to operation id, so transforms commute regardless of arrival order.
func winsTie(a, b Operation) bool {
	if a.AuthorID != b.AuthorID {
		return a.AuthorID < b.AuthorID
	}

	return a.ID < b.ID
}

func transformInsertInsert(self, other Operation) Operation {
	result := self.Clone()

	switch {
	case other.Position < self.Position:
		result.Position += len([]rune(other.Text))
	case other.Position > self.Position:
		// self stays.
	default:
		if winsTie(other, self) {
			result.Position += len([]rune(other.Text))
		}
	}

	return result
}

func transformInsertVsDelete(self, other Operation) Operation {
	result := self.Clone()
	dEnd := other.Position + other.Length

	switch {
	case dEnd <= self.Position:
		result.Position -= other.Length
	case other.Position < self.Position && self.Position < dEnd:
		result.Position = other.Position
	}

	return result
}

func transformDeleteVsInsert(self, other Operation) Operation {
	result := self.Clone()
	insLen := len([]rune(other.Text))

	switch {
	case other.Position <= self.Position:
		result.Position += insLen
	case other.Position < self.Position+self.Length:
		result.Length += insLen
	}

	return result
}

// transformDeleteDelete implements the six interval cases from spec.md §4.1:
// self = [a, a+n), other = [b, b+m).
func transformDeleteDelete(self, other Operation) Operation {
	a, n := self.Position, self.Length
	b, m := other.Position, other.Length
	selfEnd, otherEnd := a+n, b+m

	switch {
	case otherEnd <= a:
		// Case 1: disjoint, other entirely before self.
		return NewDelete(a-m, n, self.Text, self.AuthorID).withMeta(self)

	case b <= a && otherEnd >= selfEnd:
		// Case 2: other covers self entirely; collapse to a no-op.
		return NewDelete(b, 0, "", self.AuthorID).withMeta(self)

	case b <= a && otherEnd < selfEnd:
		// Case 3: overlap at the head of self.
		newLength := selfEnd - otherEnd
		return NewDelete(b, newLength, suffixRunes(self.Text, newLength), self.AuthorID).withMeta(self)

	case b > a && b < selfEnd && otherEnd >= selfEnd:
		// Case 4: overlap at the tail of self.
		newLength := b - a
		return NewDelete(a, newLength, prefixRunes(self.Text, newLength), self.AuthorID).withMeta(self)

	case a < b && otherEnd < selfEnd:
		// Case 5: other strictly inside self; splice the middle out.
		newLength := n - m
		return NewDelete(a, newLength, spliceRunes(self.Text, n, b-a, otherEnd-a), self.AuthorID).withMeta(self)

	default:
		// Case 6: disjoint, other entirely after self.
		return self.Clone()
	}
}

// withMeta copies ID/Source/RelatedID from the original onto a freshly
// constructed transform result.
func (o Operation) withMeta(orig Operation) Operation {
	o.ID = orig.ID
	o.Source = orig.Source
	o.RelatedID = orig.RelatedID

	return o
}

func prefixRunes(s string, n int) string {
	r := []rune(s)
	if len(r) < n || n <= 0 {
		return ""
	}

	return string(r[:n])
}

func suffixRunes(s string, n int) string {
	r := []rune(s)
	if len(r) < n || n <= 0 {
		return ""
	}

	return string(r[len(r)-n:])
}

// spliceRunes removes the middle slice [cutStart, cutEnd) of an original
// deleted-text capture of length origLen, returning "" if the capture is
// stale (shorter than origLen, meaning it was never captured).
func spliceRunes(s string, origLen, cutStart, cutEnd int) string {
	r := []rune(s)
	if len(r) < origLen || cutStart < 0 || cutEnd > origLen || cutStart > cutEnd {
		return ""
	}

	out := make([]rune, 0, origLen-(cutEnd-cutStart))
	out = append(out, r[:cutStart]...)
	out = append(out, r[cutEnd:]...)

	return string(out)
}
