package writer

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/your-org/fd/internal/config"
	"github.com/your-org/fd/internal/models"
)

func TestDBWriterEnqueueSucceedsUnderCapacity(t *testing.T) {
	w := NewDBWriter(nil, nil, 2)
	mark := models.AttendanceMark{CompanyID: uuid.New(), EmployeeID: uuid.New()}

	assert.True(t, w.Enqueue(mark), "expected enqueue to succeed under capacity")
}

func TestDBWriterEnqueueDropsWhenQueueFull(t *testing.T) {
	w := NewDBWriter(nil, nil, 1)
	mark := models.AttendanceMark{CompanyID: uuid.New(), EmployeeID: uuid.New()}

	assert.True(t, w.Enqueue(mark), "expected first enqueue to succeed")
	assert.False(t, w.Enqueue(mark), "expected second enqueue to be dropped once the queue is full")
}

func TestERPQueueEnqueueSucceedsUnderCapacity(t *testing.T) {
	q := NewERPQueue(config.ERPConfig{QueueSize: 2}, nil)
	mark := models.AttendanceMark{CompanyID: uuid.New(), EmployeeID: uuid.New()}

	assert.True(t, q.Enqueue(mark), "expected enqueue to succeed under capacity")
}

func TestERPQueueEnqueueDropsWhenQueueFull(t *testing.T) {
	q := NewERPQueue(config.ERPConfig{QueueSize: 1}, nil)
	mark := models.AttendanceMark{CompanyID: uuid.New(), EmployeeID: uuid.New()}

	assert.True(t, q.Enqueue(mark), "expected first enqueue to succeed")
	assert.False(t, q.Enqueue(mark), "expected second enqueue to be dropped once the queue is full")
}
