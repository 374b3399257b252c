package coursesync

import (
	"fmt"
	"unicode/utf8"
)

// TextOpKind is the kind of a plain-text merge operation.
type TextOpKind string

const (
	// TextRetain advances the cursor without changing text.
	TextRetain TextOpKind = "retain"
	// TextInsert splices text at the cursor and advances past it.
	TextInsert TextOpKind = "insert"
	// TextDelete removes Length runes at the cursor without advancing.
	TextDelete TextOpKind = "delete"
)

// TextOp is a single operation in a plain-text edit sequence. Insert carries
// Text; retain and delete carry Length. Positions are implicit: each op acts
// at the cursor left by the previous ops in the sequence.
type TextOp struct {
	Kind   TextOpKind `json:"kind"`
	Text   string     `json:"text,omitempty"`
	Length int        `json:"length,omitempty"`
}

// Retain builds a retain op.
func Retain(n int) TextOp { return TextOp{Kind: TextRetain, Length: n} }

// Insert builds an insert op.
func Insert(s string) TextOp { return TextOp{Kind: TextInsert, Text: s} }

// Delete builds a delete op.
func Delete(n int) TextOp { return TextOp{Kind: TextDelete, Length: n} }

// ApplyTextOps applies an operation sequence to a document by walking an
// offset cursor: retain advances the offset, insert splices text at the
// offset and advances by the inserted length, delete removes Length runes at
// the offset without advancing. All positions and lengths are measured in
// runes, never bytes, so multi-byte text is never split mid-character.
func ApplyTextOps(doc string, ops []TextOp) (string, error) {
	offset := 0
	out := []rune(doc)
	for i, op := range ops {
		switch op.Kind {
		case TextRetain:
			if op.Length < 0 {
				return "", fmt.Errorf("op %d: negative retain", i)
			}
			offset += op.Length
			if offset > len(out) {
				return "", fmt.Errorf("op %d: retain past end of document", i)
			}
		case TextInsert:
			if offset > len(out) {
				return "", fmt.Errorf("op %d: insert past end of document", i)
			}
			ins := []rune(op.Text)
			out = append(out[:offset], append(ins, out[offset:]...)...)
			offset += len(ins)
		case TextDelete:
			if op.Length < 0 {
				return "", fmt.Errorf("op %d: negative delete", i)
			}
			if offset+op.Length > len(out) {
				return "", fmt.Errorf("op %d: delete past end of document", i)
			}
			out = append(out[:offset], out[offset+op.Length:]...)
		default:
			return "", fmt.Errorf("op %d: unknown kind %q", i, op.Kind)
		}
	}
	return string(out), nil
}

// MergeText performs a best-effort operational-transform merge of two
// concurrent plain-text edit sequences against a shared base document. The
// remote sequence is transformed against the local one (same-position inserts
// tie-break local-before-remote) and both are applied. Any failure during
// transform or apply returns the base document unchanged with conflicts=true;
// a merge failure must never corrupt the base document.
func MergeText(base string, localOps, remoteOps []TextOp) (merged string, conflicts bool) {
	defer func() {
		if rec := recover(); rec != nil {
			merged, conflicts = base, true
		}
	}()

	out, err := mergeText(base, localOps, remoteOps)
	if err != nil {
		return base, true
	}
	return out, false
}

func mergeText(base string, localOps, remoteOps []TextOp) (string, error) {
	baseLen := utf8.RuneCountInString(base)
	local, err := toBaseOps(localOps, baseLen)
	if err != nil {
		return "", fmt.Errorf("local ops: %w", err)
	}
	remote, err := toBaseOps(remoteOps, baseLen)
	if err != nil {
		return "", fmt.Errorf("remote ops: %w", err)
	}

	transformed, err := transformAgainst(remote, local)
	if err != nil {
		return "", err
	}

	doc, err := ApplyTextOps(base, localOps)
	if err != nil {
		return "", err
	}
	return ApplyTextOps(doc, transformed)
}

// baseOp is an edit pinned to a position in base-document coordinates
// (rune units). Exactly one of text (insert) or length (delete) is set.
type baseOp struct {
	pos    int
	text   string
	length int
}

// toBaseOps resolves a cursor-walk op sequence into base-coordinate edits.
// Within one sequence the cursor only moves forward, so the resulting edits
// are position-ordered and deletions are disjoint.
func toBaseOps(ops []TextOp, baseLen int) ([]baseOp, error) {
	var out []baseOp
	cursor := 0
	for i, op := range ops {
		switch op.Kind {
		case TextRetain:
			if op.Length < 0 {
				return nil, fmt.Errorf("op %d: negative retain", i)
			}
			cursor += op.Length
		case TextInsert:
			if op.Text != "" {
				out = append(out, baseOp{pos: cursor, text: op.Text})
			}
		case TextDelete:
			if op.Length < 0 {
				return nil, fmt.Errorf("op %d: negative delete", i)
			}
			if op.Length > 0 {
				out = append(out, baseOp{pos: cursor, length: op.Length})
			}
			cursor += op.Length
		default:
			return nil, fmt.Errorf("op %d: unknown kind %q", i, op.Kind)
		}
		if cursor > baseLen {
			return nil, fmt.Errorf("op %d: sequence overruns base document", i)
		}
	}
	return out, nil
}

// transformAgainst rewrites remote base-coordinate edits relative to the
// effect of the local edits, returning an op sequence valid against the
// post-local document. Remote deletions never consume locally inserted text;
// remote inserts inside locally deleted ranges collapse to the deletion
// point.
func transformAgainst(remote, local []baseOp) ([]TextOp, error) {
	var dels, ins []baseOp
	for _, op := range local {
		if op.length > 0 {
			dels = append(dels, op)
		} else {
			ins = append(ins, op)
		}
	}

	// deletedBefore returns how many base runes before pos the local edits
	// removed; positions inside a deleted range clamp to its start.
	deletedBefore := func(pos int) int {
		n := 0
		for _, d := range dels {
			if d.pos >= pos {
				break
			}
			end := d.pos + d.length
			if end <= pos {
				n += d.length
			} else {
				n += pos - d.pos
			}
		}
		return n
	}
	// insertedThrough returns how many runes the local edits inserted at or
	// before pos. Inserts at exactly pos count: local edits sort before
	// remote edits at the same position.
	insertedThrough := func(pos int) int {
		n := 0
		for _, i := range ins {
			if i.pos > pos {
				break
			}
			n += utf8.RuneCountInString(i.text)
		}
		return n
	}
	toPost := func(pos int) int {
		return pos - deletedBefore(pos) + insertedThrough(pos)
	}

	// Rewrite each remote edit into post-local coordinates.
	var post []baseOp
	for _, op := range remote {
		if op.length == 0 {
			post = append(post, baseOp{pos: toPost(op.pos), text: op.text})
			continue
		}
		// A delete range is split around locally inserted text and loses
		// any overlap with locally deleted ranges.
		pieces := splitRange(op.pos, op.pos+op.length, dels, ins)
		for _, p := range pieces {
			post = append(post, baseOp{pos: toPost(p.pos), length: p.length})
		}
	}

	// Convert position-ordered post-local edits back into a cursor-walk
	// sequence.
	var ops []TextOp
	consumed := 0
	for _, op := range post {
		if op.pos < consumed {
			return nil, fmt.Errorf("transformed ops overlap at %d", op.pos)
		}
		if op.pos > consumed {
			ops = append(ops, Retain(op.pos-consumed))
			consumed = op.pos
		}
		if op.length > 0 {
			ops = append(ops, Delete(op.length))
			consumed += op.length
		} else {
			ops = append(ops, Insert(op.text))
		}
	}
	return ops, nil
}

// splitRange subtracts locally deleted ranges from [start, end) and splits
// the remainder at local insert positions, yielding base-coordinate pieces
// that each map to a contiguous run of the post-local document.
func splitRange(start, end int, dels, ins []baseOp) []baseOp {
	// Remove overlap with local deletions.
	remain := []baseOp{{pos: start, length: end - start}}
	for _, d := range dels {
		dEnd := d.pos + d.length
		var next []baseOp
		for _, r := range remain {
			rEnd := r.pos + r.length
			if dEnd <= r.pos || d.pos >= rEnd {
				next = append(next, r)
				continue
			}
			if d.pos > r.pos {
				next = append(next, baseOp{pos: r.pos, length: d.pos - r.pos})
			}
			if dEnd < rEnd {
				next = append(next, baseOp{pos: dEnd, length: rEnd - dEnd})
			}
		}
		remain = next
	}

	// Split the survivors at interior local insert positions so locally
	// inserted text is never swallowed by a remote delete.
	var out []baseOp
	for _, r := range remain {
		rEnd := r.pos + r.length
		cur := r.pos
		for _, i := range ins {
			if i.pos <= cur || i.pos >= rEnd {
				continue
			}
			out = append(out, baseOp{pos: cur, length: i.pos - cur})
			cur = i.pos
		}
		if cur < rEnd {
			out = append(out, baseOp{pos: cur, length: rEnd - cur})
		}
	}
	return out
}
