// Package services defines the error taxonomy shared by platform clients and
// the dispatcher, plus context annotations that flow through task execution.
package services
