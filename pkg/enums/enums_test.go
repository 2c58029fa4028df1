package enums

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus("Pending Payment")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPendingPayment, status)

	_, err = ParseOrderStatus("pending_payment")
	require.Error(t, err)
}

func TestOrderStatusClassification(t *testing.T) {
	assert.True(t, OrderStatusDelivered.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusShipped.IsTerminal())

	assert.False(t, OrderStatusPendingPayment.IsPaid())
	assert.True(t, OrderStatusProcessing.IsPaid())
	assert.False(t, OrderStatusCancelled.IsPaid())
}

func TestParseDurationUnit(t *testing.T) {
	unit, err := ParseDurationUnit(" Days ")
	require.NoError(t, err)
	assert.Equal(t, DurationUnitDays, unit)
	assert.Equal(t, 24*time.Hour, unit.Span())

	_, err = ParseDurationUnit("weeks")
	require.Error(t, err)
	assert.Zero(t, DurationUnit("weeks").Span())
}

func TestOutboxEnums(t *testing.T) {
	assert.True(t, EventOrderPaid.IsValid())
	assert.False(t, OutboxEventType("order_refunded").IsValid())

	agg, err := ParseOutboxAggregateType("promotion")
	require.NoError(t, err)
	assert.Equal(t, AggregatePromotion, agg)
	_, err = ParseOutboxAggregateType("customer")
	assert.Error(t, err)

	assert.Equal(t, AggregateOrder, EventOrderPaid.Aggregate())
	assert.Equal(t, AggregatePromotion, EventPromotionCleared.Aggregate())
	assert.Empty(t, OutboxEventType("order_refunded").Aggregate())

	types := OutboxEventTypes()
	assert.Len(t, types, 6)
	assert.Equal(t, EventOrderCanceled, types[0])
}

func TestParseStaffRole(t *testing.T) {
	role, err := ParseStaffRole("admin")
	require.NoError(t, err)
	assert.Equal(t, StaffRoleAdmin, role)
	assert.True(t, StaffRoleSupport.IsValid())

	_, err = ParseStaffRole("owner")
	require.Error(t, err)
}

func TestParseOutboxDLQErrorReason(t *testing.T) {
	reason, err := ParseOutboxDLQErrorReason("unroutable")
	require.NoError(t, err)
	assert.Equal(t, OutboxDLQReasonUnroutable, reason)

	_, err = ParseOutboxDLQErrorReason("gave_up")
	require.Error(t, err)
}
