// Package metrics exposes Prometheus collectors for the attendance engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AttendanceAttempts counts mark-attendance attempts by outcome
// (marked, outside_time_window, outside_geofence, user_not_found,
// class_not_found, error).
var AttendanceAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rollcall",
	Name:      "attendance_attempts_total",
	Help:      "Attendance mark attempts by outcome.",
}, []string{"outcome"})
