package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleTrace() []Record {
	return []Record{
		{Seq: 1, AddedTick: 0, SchedTick: 5, Priority: 5, Kind: KindDispatch, Description: "C"},
		{Seq: 2, AddedTick: 0, SchedTick: 10, Priority: 0, Kind: KindDispatch, Description: "B"},
		{Seq: 3, AddedTick: 5, SchedTick: 10, Priority: 1, Kind: KindResume, Description: "resume A"},
	}
}

func TestRecord_Canonical(t *testing.T) {
	r := Record{Seq: 7, AddedTick: 2, SchedTick: 9, Priority: -1, Kind: KindCondition, Description: "say \"hi\"\tnow"}

	assert.Equal(t, "7\t9\t-1\t2\tcondition\t\"say \\\"hi\\\"\\tnow\"", r.Canonical())
}

func TestRecord_CanonicalNormalizesUnicode(t *testing.T) {
	composed := Record{Seq: 1, Kind: KindDispatch, Description: "caf\u00e9"}
	decomposed := Record{Seq: 1, Kind: KindDispatch, Description: "cafe\u0301"}

	assert.Equal(t, composed.Canonical(), decomposed.Canonical())
}

func TestDigest_Deterministic(t *testing.T) {
	a := Digest(sampleTrace())
	b := Digest(sampleTrace())

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, Digest(nil), a)
}

func TestDigest_SensitiveToOrder(t *testing.T) {
	records := sampleTrace()
	swapped := []Record{records[1], records[0], records[2]}

	assert.NotEqual(t, Digest(records), Digest(swapped))
}

func TestCanonical_OneLinePerRecord(t *testing.T) {
	out := Canonical(sampleTrace())
	assert.Equal(t, "1\t5\t5\t0\tdispatch\t\"C\"\n2\t10\t0\t0\tdispatch\t\"B\"\n3\t10\t1\t5\tresume\t\"resume A\"\n", out)
	assert.Equal(t, "", Canonical(nil))
}

func TestFirstDivergence(t *testing.T) {
	base := sampleTrace()

	assert.Equal(t, -1, FirstDivergence(base, sampleTrace()))

	changed := sampleTrace()
	changed[1].SchedTick = 11
	assert.Equal(t, 1, FirstDivergence(base, changed))

	assert.Equal(t, 2, FirstDivergence(base, base[:2]), "shorter trace diverges at its end")
	assert.Equal(t, 0, FirstDivergence(nil, base))
	assert.Equal(t, -1, FirstDivergence(nil, nil))
}
