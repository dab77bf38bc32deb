package objgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func link(from Ptr[*node], to ...Ptr[*node]) {
	from.Get().A = append(from.Get().A, to...)
}

func TestReleaseAcyclic(t *testing.T) {
	d := NewDomain(newNodeRegistry(t), nil, Options{})
	takeErased()
	a := mkNode(t, d, 1, 1)
	b := mkNode(t, d, 2, 2)
	link(a, b.Move())
	assert.Equal(t, 1, a.Get().A[0].Get().RefCount())

	a.Release()
	assert.Equal(t, []int{1, 2}, takeErased())
	assert.Equal(t, 0, d.Len())
}

func TestReleaseKeepsSharedChild(t *testing.T) {
	d := NewDomain(newNodeRegistry(t), nil, Options{})
	takeErased()
	a := mkNode(t, d, 1, 1)
	b := mkNode(t, d, 2, 2)
	c := mkNode(t, d, 3, 3)
	link(a, b.Share())
	link(c, b.Move())

	a.Release()
	assert.Equal(t, []int{1}, takeErased())
	assert.Equal(t, 1, c.Get().A[0].Get().RefCount())
	assert.False(t, c.Get().A[0].Get().Destroyed())

	c.Release()
	assert.Equal(t, []int{2, 3}, takeErased())
}

func TestReleaseSelfCycle(t *testing.T) {
	d := NewDomain(newNodeRegistry(t), nil, Options{})
	takeErased()
	a := mkNode(t, d, 1, 1)
	link(a, a.Share())
	assert.Equal(t, 2, a.Get().RefCount())

	a.Release()
	assert.Equal(t, []int{1}, takeErased())
	assert.Equal(t, 0, d.Len())
}

func TestReleaseDiamond(t *testing.T) {
	d := NewDomain(newNodeRegistry(t), nil, Options{})
	takeErased()
	a := mkNode(t, d, 1, 1)
	dd := mkNode(t, d, 4, 4)
	c := mkNode(t, d, 3, 3)
	link(a, c.Share())
	link(dd, c.Move())

	a.Release()
	assert.Equal(t, []int{1}, takeErased())
	dd.Release()
	assert.Equal(t, []int{3, 4}, takeErased())
}

func TestReleaseCycleWithOutsideHolder(t *testing.T) {
	d := NewDomain(newNodeRegistry(t), nil, Options{})
	takeErased()
	// a -> b, c -> b, c <-> d
	a := mkNode(t, d, 1, 1)
	b1 := mkNode(t, d, 2, 2)
	b2 := b1.Share()
	d1 := mkNode(t, d, 3, 3)
	d2 := d1.Share()
	c := mkNode(t, d, 4, 4)
	link(a, b1.Move())
	link(c, b2.Move(), d2.Move())
	link(d1, c.Move())

	a.Release()
	assert.Equal(t, []int{1}, takeErased())
	d1.Release()
	assert.Equal(t, []int{2, 3, 4}, takeErased())
}

func TestReleaseCycleBeforeOutsideHolder(t *testing.T) {
	d := NewDomain(newNodeRegistry(t), nil, Options{})
	takeErased()
	a := mkNode(t, d, 1, 1)
	b1 := mkNode(t, d, 2, 2)
	b2 := b1.Share()
	d1 := mkNode(t, d, 3, 3)
	d2 := d1.Share()
	c := mkNode(t, d, 4, 4)
	link(a, b1.Move())
	link(c, b2.Move(), d2.Move())
	link(d1, c.Move())

	d1.Release()
	assert.Equal(t, []int{3, 4}, takeErased())
	a.Release()
	assert.Equal(t, []int{1, 2}, takeErased())
}

func TestReleaseTwoCycle(t *testing.T) {
	d := NewDomain(newNodeRegistry(t), nil, Options{})
	takeErased()
	a1 := mkNode(t, d, 1, 1)
	a2 := a1.Share()
	b := mkNode(t, d, 2, 2)
	link(b, a2.Move())
	link(a1, b.Move())

	a1.Release()
	assert.Equal(t, []int{1, 2}, takeErased())
}

func TestReleaseCycleKeptByMember(t *testing.T) {
	d := NewDomain(newNodeRegistry(t), nil, Options{})
	takeErased()
	// a -> c -> b -> a, c held from outside
	a1 := mkNode(t, d, 1, 1)
	a2 := a1.Share()
	b := mkNode(t, d, 2, 2)
	c1 := mkNode(t, d, 3, 3)
	c2 := c1.Share()
	link(b, a2.Move())
	link(a1, c2.Move())
	link(c1, b.Move())

	a1.Release()
	assert.Empty(t, takeErased())
	c1.Release()
	assert.Equal(t, []int{1, 2, 3}, takeErased())
}

func TestReleaseCycleSharedFromOutside(t *testing.T) {
	d := NewDomain(newNodeRegistry(t), nil, Options{})
	takeErased()
	// a -> b, b <-> c, b held from outside
	a := mkNode(t, d, 1, 1)
	b1 := mkNode(t, d, 2, 2)
	b2 := b1.Share()
	b3 := b1.Share()
	c := mkNode(t, d, 3, 3)
	link(a, b1.Move())
	link(c, b2.Move())
	link(b3, c.Move())

	a.Release()
	assert.Equal(t, []int{1}, takeErased())
	b3.Release()
	assert.Equal(t, []int{2, 3}, takeErased())
}

func TestReleaseRootOnly(t *testing.T) {
	d := NewDomain(newNodeRegistry(t), nil, Options{})
	takeErased()
	a1 := mkNode(t, d, 1, 1)
	a2 := a1.Share()
	b1 := mkNode(t, d, 2, 2)
	b2 := b1.Share()
	c := mkNode(t, d, 3, 3)
	link(a1, b1.Move())
	link(c, a2.Move(), b2.Move())

	c.Release()
	assert.Equal(t, []int{3}, takeErased())
	a1.Release()
	assert.Equal(t, []int{1, 2}, takeErased())
}

func TestReleaseChainFromRoot(t *testing.T) {
	d := NewDomain(newNodeRegistry(t), nil, Options{})
	takeErased()
	a1 := mkNode(t, d, 1, 1)
	a2 := a1.Share()
	b1 := mkNode(t, d, 2, 2)
	b2 := b1.Share()
	c := mkNode(t, d, 3, 3)
	dd := mkNode(t, d, 4, 4)
	link(a1, b1.Move())
	link(c, b2.Move())
	link(dd, a2.Move())
	link(c, dd.Move())

	c.Release()
	assert.Equal(t, []int{3, 4}, takeErased())
	a1.Release()
	assert.Equal(t, []int{1, 2}, takeErased())
}

func TestReleaseCountsMatchHandles(t *testing.T) {
	d := NewDomain(newNodeRegistry(t), nil, Options{})
	takeErased()
	a := mkNode(t, d, 1, 1)
	b := mkNode(t, d, 2, 2)
	link(a, b.Share(), b.Share())
	link(b, a.Share())
	assert.Equal(t, 2, a.Get().RefCount())
	assert.Equal(t, 3, b.Get().RefCount())

	b.Release()
	assert.Empty(t, takeErased())
	assert.Equal(t, 2, a.Get().A[0].Get().RefCount())

	a.Release()
	assert.Equal(t, []int{1, 2}, takeErased())
}
