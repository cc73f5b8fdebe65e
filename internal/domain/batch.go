package domain

// RecordOutcome captures what happened to a single record within a batch.
type RecordOutcome struct {
	// Key is the source record key.
	Key string

	// TargetID is the identifier of the created target entity, 0 if skipped.
	TargetID int

	// Err is the per-record failure that caused a skip, nil on success.
	Err error
}

// Skipped reports whether the record was skipped rather than applied.
func (o RecordOutcome) Skipped() bool { return o.Err != nil }

// Batch is one fetched page of records moving through the pipeline.
// It maintains the invariant that Outcomes never outgrows Records.
type Batch struct {
	// Offset is the cursor position this batch was fetched at.
	Offset int

	// Records contains the fetched source records in fetch order.
	Records []Issue

	// Outcomes holds one entry per processed record, in the same order.
	Outcomes []RecordOutcome
}

// NewBatch creates an empty batch positioned at the given cursor offset.
func NewBatch(offset int) *Batch {
	return &Batch{Offset: offset}
}

// Add appends a fetched record to the batch.
func (b *Batch) Add(issue Issue) {
	b.Records = append(b.Records, issue)
}

// Finish records the outcome for the next record in order.
func (b *Batch) Finish(outcome RecordOutcome) {
	b.Outcomes = append(b.Outcomes, outcome)
}

// Size returns the number of fetched records in the batch.
func (b *Batch) Size() int {
	return len(b.Records)
}

// Empty returns true if the batch has no records.
func (b *Batch) Empty() bool {
	return len(b.Records) == 0
}

// Created returns the number of records applied successfully.
func (b *Batch) Created() int {
	n := 0
	for _, o := range b.Outcomes {
		if !o.Skipped() {
			n++
		}
	}
	return n
}

// SkippedCount returns the number of records skipped on per-record errors.
func (b *Batch) SkippedCount() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Skipped() {
			n++
		}
	}
	return n
}

// Advance returns how far the cursor moves after this batch: the number of
// records fetched, regardless of how many were applied. Skipped records are
// never refetched on resume.
func (b *Batch) Advance() int {
	return len(b.Records)
}
