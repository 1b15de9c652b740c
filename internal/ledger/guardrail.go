package ledger

// GuardrailResult describes what ApplyGuardrail did to a record.
type GuardrailResult struct {
	Record           *Record
	Degraded         bool
	AnnouncedDropped bool
	// Dropped lists the JSON names of the fields removed, in drop order.
	Dropped     []string
	BytesBefore int
	ApproxBytes int
}

// dropStep removes one enumerable field from a record.
type dropStep struct {
	field string
	drop  func(*Record)
}

// Diagnostic lists go first, largest and least useful first. The announced
// set is handled separately because losing it risks duplicate notifications.
var diagnosticDrops = []dropStep{
	{"unlockedApiIds", func(r *Record) { r.UnlockedAPIIDs = nil }},
	{"lockedApiIds", func(r *Record) { r.LockedAPIIDs = nil }},
	{"unannouncedUnlockedApiIds", func(r *Record) { r.UnannouncedUnlockedAPIIDs = nil }},
}

// ApplyGuardrail returns a copy of rec that fits in maxBytes when possible.
// The input is never modified. maxBytes <= 0 disables the guardrail.
//
// Size is measured by encoding after every step. Identity, counts and flags
// are never removed, so the result can still exceed maxBytes; callers then
// get ErrRecordTooLarge from the store.
func ApplyGuardrail(rec *Record, maxBytes int) (GuardrailResult, error) {
	out := *rec
	size, err := out.Size()
	if err != nil {
		return GuardrailResult{}, err
	}
	res := GuardrailResult{Record: &out, BytesBefore: size, ApproxBytes: size}
	if maxBytes <= 0 || size <= maxBytes {
		return res, nil
	}

	res.Degraded = true
	out.Truncated = true
	out.ApproxBytesBeforeTruncate = size

	for _, step := range diagnosticDrops {
		step.drop(&out)
		res.Dropped = append(res.Dropped, step.field)
		if size, err = out.Size(); err != nil {
			return GuardrailResult{}, err
		}
		res.ApproxBytes = size
		if size <= maxBytes {
			return res, nil
		}
	}

	out.AnnouncedAPIIDs = nil
	out.AnnouncedDropped = true
	res.AnnouncedDropped = true
	res.Dropped = append(res.Dropped, "announcedApiIds")
	if size, err = out.Size(); err != nil {
		return GuardrailResult{}, err
	}
	res.ApproxBytes = size
	return res, nil
}
