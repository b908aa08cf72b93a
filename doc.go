// Package gantry is an embedded workflow orchestration engine: tasks
// connected by dependencies form a graph, the executor runs the graph
// layer by layer with retries and timeouts, and a cron driven daemon
// fires whole workflows on schedule with persistent state, backfills
// and execution history.
//
// The packages compose bottom up:
//
//	task     execution primitive with status, retries and timeout
//	graph    dependency graph, validation, layering, the graph executor
//	runner   command execution backends for workflow tasks
//	workflow YAML definitions, registry and the workflow executor
//	store    JSON state files and the execution history log
//	sched    cron daemon, backfill queue and the scheduling manager
//	config   environment driven settings
package gantry
