package accnt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUtaddAndSystaddAccumulate(t *testing.T) {
	a := &Accnt_t{}
	a.Utadd(100)
	a.Utadd(50)
	a.Systadd(10)

	ru := a.Fetch()
	assert.Equal(t, 0, ru.UserSec)
	assert.Equal(t, 0, ru.SysSec)
	assert.Equal(t, int64(150), a.Userns)
	assert.Equal(t, int64(10), a.Sysns)
}

func TestFinishAddsElapsedSystemTime(t *testing.T) {
	a := &Accnt_t{}
	start := a.Now()
	a.Finish(start)
	assert.GreaterOrEqual(t, a.Sysns, int64(0))
}

func TestIoTimeAndSleepTimeSubtractFromSystemTime(t *testing.T) {
	a := &Accnt_t{}
	a.Systadd(1000)
	since := a.Now()
	a.Io_time(since)
	assert.Less(t, a.Sysns, int64(1000))

	a = &Accnt_t{}
	a.Systadd(1000)
	since = a.Now()
	a.Sleep_time(since)
	assert.Less(t, a.Sysns, int64(1000))
}

func TestAddMergesChildIntoParent(t *testing.T) {
	parent := &Accnt_t{Userns: 100, Sysns: 50}
	child := &Accnt_t{Userns: 7, Sysns: 3}

	parent.Add(child)
	assert.Equal(t, int64(107), parent.Userns)
	assert.Equal(t, int64(53), parent.Sysns)
}

func TestRusageBytesEncodesFields(t *testing.T) {
	ru := Rusage_t{UserSec: 1, UserUsec: 2, SysSec: 3, SysUsec: 4}
	b := ru.Bytes()
	require.Len(t, b, 32)
}
