package shard

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/aethercore-labs/aethercore/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var provedAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func nodes(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("node-%d:7000", i)
	}
	return out
}

func record(size int) Record {
	data := bytes.Repeat([]byte("weights!"), size/8+1)[:size]
	return Record{ID: "brain-1", Name: "atlas-7b", Data: data}
}

func TestRingOwnerIsStable(t *testing.T) {
	r := NewRing(nodes(5)...)
	a, err := r.Owner("brain-1/0")
	require.NoError(t, err)
	b, err := r.Owner("brain-1/0")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, r.Nodes(), 5)

	r.RemoveNode(a)
	c, err := r.Owner("brain-1/0")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestRingEmpty(t *testing.T) {
	r := NewRing()
	_, err := r.Owner("x")
	assert.ErrorIs(t, err, ErrNoNodes)
	_, err = r.Replicas("x", 3)
	assert.ErrorIs(t, err, ErrNoNodes)
}

func TestAssignSplitsAndReplicates(t *testing.T) {
	p, err := NewPlanner(NewRing(nodes(5)...), 1000)
	require.NoError(t, err)
	rec := record(2500)

	got, err := p.Assign(rec, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	total := 0
	for i, a := range got {
		assert.Equal(t, i, a.Index)
		assert.Equal(t, total, a.Offset)
		assert.Len(t, a.Replicas, 2)
		assert.NotContains(t, a.Replicas, a.Primary)
		assert.True(t, VerifyChunk(a, rec.Data[a.Offset:a.Offset+a.Size]))
		total += a.Size
	}
	assert.Equal(t, len(rec.Data), total)
	assert.Equal(t, 500, got[2].Size)

	again, err := p.Assign(rec, 3)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestAssignCapsReplicasAtRingSize(t *testing.T) {
	p, err := NewPlanner(NewRing(nodes(2)...), 0)
	require.NoError(t, err)
	got, err := p.Assign(record(10), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Replicas, 1)
}

func TestAssignRejectsBadInput(t *testing.T) {
	p, err := NewPlanner(NewRing(nodes(3)...), 16)
	require.NoError(t, err)
	_, err = p.Assign(Record{ID: "", Data: []byte("x")}, 1)
	assert.Error(t, err)
	_, err = p.Assign(Record{ID: "a"}, 1)
	assert.Error(t, err)

	empty, err := NewPlanner(NewRing(), 16)
	require.NoError(t, err)
	_, err = empty.Assign(record(32), 1)
	assert.ErrorIs(t, err, ErrNoNodes)

	_, err = NewPlanner(nil, 16)
	assert.Error(t, err)
}

func TestVerifyChunkRejectsTampering(t *testing.T) {
	p, err := NewPlanner(NewRing(nodes(3)...), 64)
	require.NoError(t, err)
	rec := record(64)
	got, err := p.Assign(rec, 1)
	require.NoError(t, err)

	tampered := append([]byte(nil), rec.Data...)
	tampered[0] ^= 1
	assert.False(t, VerifyChunk(got[0], tampered))
	assert.False(t, VerifyChunk(got[0], rec.Data[:63]))
}

func proved(t *testing.T) ([]Assignment, *IntegrityProof, *crypto.PrivateKey) {
	t.Helper()
	p, err := NewPlanner(NewRing(nodes(4)...), 128)
	require.NoError(t, err)
	assignments, err := p.Assign(record(1000), 3)
	require.NoError(t, err)
	key, err := crypto.NewPrivateKey(3)
	require.NoError(t, err)
	proof, err := Prove(assignments, key, provedAt)
	require.NoError(t, err)
	return assignments, proof, key
}

func TestProveAndVerify(t *testing.T) {
	assignments, proof, key := proved(t)
	assert.Equal(t, "brain-1", proof.RecordID)
	assert.Equal(t, len(assignments), proof.ShardCount)
	assert.Equal(t, key.Level().SignatureScheme(), proof.Algorithm)
	require.NoError(t, VerifyProof(proof, assignments, key.PublicKey()))
	require.NoError(t, VerifyProof(proof, assignments, nil))
}

func TestVerifyProofRejects(t *testing.T) {
	assignments, proof, _ := proved(t)

	swapped := append([]Assignment(nil), assignments...)
	swapped[0].Digest = ChunkDigest([]byte("other"))
	assert.Error(t, VerifyProof(proof, swapped, nil))

	assert.Error(t, VerifyProof(proof, assignments[1:], nil))

	forged := *proof
	forged.ShardCount = len(assignments)
	forged.CreatedAt = proof.CreatedAt.Add(time.Second)
	assert.Error(t, VerifyProof(&forged, assignments, nil))

	other, err := crypto.NewPrivateKey(3)
	require.NoError(t, err)
	assert.Error(t, VerifyProof(proof, assignments, other.PublicKey()))

	resigned, err := Prove(assignments, other, provedAt)
	require.NoError(t, err)
	require.NoError(t, VerifyProof(resigned, assignments, nil))
	resigned.Signature = proof.Signature
	assert.Error(t, VerifyProof(resigned, assignments, nil))

	assert.Error(t, VerifyProof(nil, assignments, nil))
}

func TestProveRejectsMixedRecords(t *testing.T) {
	key, err := crypto.NewPrivateKey(2)
	require.NoError(t, err)
	_, err = Prove(nil, key, provedAt)
	assert.Error(t, err)

	mixed := []Assignment{
		{RecordID: "a", Index: 0, Digest: ChunkDigest([]byte("1"))},
		{RecordID: "b", Index: 1, Digest: ChunkDigest([]byte("2"))},
	}
	_, err = Prove(mixed, key, provedAt)
	assert.Error(t, err)
}
