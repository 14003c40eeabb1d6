package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpiryPolicy(t *testing.T) {
	p, err := ParseExpiryPolicy("requeue")
	require.NoError(t, err)
	assert.Equal(t, EXPIRE_REQUEUE, p)

	p, err = ParseExpiryPolicy("DROP")
	require.NoError(t, err)
	assert.Equal(t, EXPIRE_DROP, p)

	p, err = ParseExpiryPolicy("")
	require.NoError(t, err)
	assert.Equal(t, EXPIRE_DROP, p)

	_, err = ParseExpiryPolicy("retry")
	assert.Error(t, err)

	assert.Equal(t, "requeue", EXPIRE_REQUEUE.String())
}

func TestAssignmentsWithoutTimeoutNeverExpire(t *testing.T) {
	a := newAssignments(0, EXPIRE_REQUEUE)
	now := time.Now()

	asg := a.assign([]byte("w"), newClientMessage([]byte("c"), []byte("payload")), "tok", now)
	assert.True(t, asg.deadline.IsZero())
	// payloads are only kept if they can be requeued
	assert.Nil(t, asg.message.payload)

	assert.Empty(t, a.expire(now.Add(24*time.Hour)))
	assert.True(t, a.isAssigned([]byte("w")))

	got, late := a.complete([]byte("w"))
	require.NotNil(t, got)
	assert.False(t, late)
	assert.Equal(t, []byte("c"), got.message.clientId)
	assert.Equal(t, 0, a.Len())
}

func TestAssignmentsExpireAndLateReply(t *testing.T) {
	a := newAssignments(time.Second, EXPIRE_DROP)
	now := time.Now()

	a.assign([]byte("w1"), newClientMessage([]byte("c1"), []byte("p1")), "t1", now)
	a.assign([]byte("w2"), newClientMessage([]byte("c2"), []byte("p2")), "t2", now.Add(500*time.Millisecond))

	assert.Empty(t, a.expire(now.Add(time.Second)))

	expired := a.expire(now.Add(1200 * time.Millisecond))
	require.Len(t, expired, 1)
	assert.Equal(t, []byte("w1"), expired[0].worker)
	assert.Nil(t, expired[0].message.payload)
	assert.False(t, a.isAssigned([]byte("w1")))

	// w1 answers after all
	got, late := a.complete([]byte("w1"))
	assert.Nil(t, got)
	assert.True(t, late)

	// but only once
	got, late = a.complete([]byte("w1"))
	assert.Nil(t, got)
	assert.False(t, late)
}

func TestAssignmentsExpireOldestFirst(t *testing.T) {
	a := newAssignments(time.Second, EXPIRE_REQUEUE)
	now := time.Now()

	for i, id := range []string{"c", "a", "d", "b"} {
		a.assign([]byte(id), newClientMessage([]byte("client-"+id), []byte(id)), id, now.Add(time.Duration(i)*time.Millisecond))
	}

	expired := a.expire(now.Add(time.Hour))
	require.Len(t, expired, 4)

	var order []string
	for _, asg := range expired {
		order = append(order, string(asg.message.payload))
	}
	assert.Equal(t, []string{"c", "a", "d", "b"}, order)
}

func TestAssignmentsCancel(t *testing.T) {
	a := newAssignments(time.Second, EXPIRE_REQUEUE)
	now := time.Now()

	a.assign([]byte("w"), newClientMessage([]byte("c"), []byte("p")), "t", now)

	asg := a.cancel([]byte("w"))
	require.NotNil(t, asg)
	assert.Equal(t, []byte("p"), asg.message.payload)
	assert.Nil(t, a.cancel([]byte("w")))
}

func TestLostWorkersAreForgotten(t *testing.T) {
	a := newAssignments(time.Second, EXPIRE_DROP)
	now := time.Now()

	a.assign([]byte("w"), newClientMessage([]byte("c"), nil), "t", now)
	require.Len(t, a.expire(now.Add(2*time.Second)), 1)
	assert.Len(t, a.lost, 1)

	a.expire(now.Add(time.Hour))
	assert.Empty(t, a.lost)
}
