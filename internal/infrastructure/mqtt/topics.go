package mqtt

// Topic prefix of every printer topic.
const topicPrefixDevice = "device/"

// pushAllPayload asks the printer to publish a full status report.
const pushAllPayload = `{"pushing":{"sequence_id":"0","command":"pushall"}}`

// Topics provides builders for printer MQTT topics.
//
//	topic := mqtt.Topics{}.Report("01S00C123456789")
//	// Returns: "device/01S00C123456789/report"
type Topics struct{}

// Report returns the topic the printer publishes its status on.
func (Topics) Report(serial string) string {
	return topicPrefixDevice + serial + "/report"
}

// Request returns the topic the printer accepts commands on.
func (Topics) Request(serial string) string {
	return topicPrefixDevice + serial + "/request"
}
