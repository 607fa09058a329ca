package rabbitmq

// AccessExchange — exchange для событий изменения уровня доступа.
const AccessExchange = "access"

// Routing keys для событий доступа.
const (
	AccessChangedKey = "access.changed"
)

// QueueConfig описывает очередь и её routing key.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// DefaultQueues возвращает стандартный набор очередей сервиса.
func DefaultQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "access_changed_queue", RoutingKey: AccessChangedKey},
	}
}
