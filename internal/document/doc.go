// Package document defines the platform-neutral content model that bridges
// the Feishu and Notion block representations. Every node kind the pipeline
// understands is enumerated here; platform clients parse into and emit from
// this model so the two wire formats never meet directly.
package document
