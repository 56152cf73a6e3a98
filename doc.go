//Package stompest is a STOMP client for talking to message brokers such as
//ActiveMQ or RabbitMQ. It speaks STOMP 1.0, 1.1 and 1.2 over TCP or
//WebSocket and keeps the protocol core (frames, per-version command
//building, session state) independent of the transport, so the same core
//can back other client styles.

//Example, publish inside a transaction and consume one message:

/*
	config, err := stompest.NewConfig("tcp://localhost:61613")
	if err != nil {
		log.Fatal(err)
	}
	config.Login = "admin"
	config.Passcode = "admin"

	client := stompest.NewClient(config)
	if err := client.Connect(); err != nil {
		log.Fatal(err)
	}
	defer client.Disconnect()

	err = client.Transaction("", func(tx string) error {
		header := stompest.NewHeader(stompest.HdrTransaction, tx)
		return client.Send("/queue/test", []byte(`{"test":"test"}`), header)
	})
	if err != nil {
		log.Fatal(err)
	}

	token, err := client.Subscribe("/queue/test", nil)
	if err != nil {
		log.Fatal(err)
	}
	frame, err := client.ReceiveFrame()
	if err != nil {
		log.Fatal(err)
	}
	if matched, err := client.Message(frame); err == nil && matched == token {
		client.Ack(frame, "", "")
	}
*/
package stompest
