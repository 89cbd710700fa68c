// Package queue plays synthesized chunks strictly in chunk order.
// Producers push chunks as they finish generating; a single consumer
// goroutine plays them back to back and buffers early arrivals until
// their predecessors have played or been skipped.
package queue
