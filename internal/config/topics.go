package config

// TopicPrefix namespaces all job topics in NSQ.
const TopicPrefix = "jobs."

// JobTopic maps a registry queue name to its NSQ topic.
func JobTopic(queue string) string {
	return TopicPrefix + queue
}

// WorkerChannel is the shared NSQ channel name for the execution
// engine. Every worker process joins the same channel so each delivery
// goes to exactly one worker.
const WorkerChannel = "worker"
