package kafka

const (
	TopicSessionStarted = "consultation.session.started"
	TopicSessionBilled  = "consultation.session.billed"
	TopicSessionEnded   = "consultation.session.ended"
	TopicQueueJoined    = "consultation.queue.joined"
	TopicQueueLeft      = "consultation.queue.left"
	TopicQueueAdmitted  = "consultation.queue.admitted"
	TopicCreditsLedger  = "credits.ledger"
	TopicBillingAlert   = "ops.billing.alert"

	TopicConsultantProfileUpdated  = "consultant.profile.updated"
	TopicConsultantPresenceChanged = "consultant.presence.changed"
	TopicCreditsPurchased          = "credits.purchased"
	TopicConsultationDisconnected  = "consultation.disconnected"
)
