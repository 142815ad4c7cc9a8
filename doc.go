// Package seriallink keeps a line-oriented device connection alive in the
// background so the host program never blocks on I/O.
//
// This package is built for control loops and UI threads that must stay
// responsive while talking to embedded devices: the host polls for
// messages on its own schedule (e.g., once per frame or loop iteration)
// while a worker goroutine owns the connection, reassembles delimited
// lines, and reconnects automatically after failures.
//
// Features:
//   - Non-blocking API: every method returns immediately
//   - Bounded message queues with drop-oldest or drop-newest overflow
//   - Automatic reconnection with constant or exponential backoff
//   - Connection events delivered in order with the data stream
//   - Serial, raw termios (Linux), TCP and WebSocket transports selected
//     by the port name
//   - Teardown hook for farewell commands during shutdown
//
// Example usage:
//
//	link := seriallink.New(seriallink.Config{
//	    PortName:  "/dev/ttyUSB0",
//	    BaudRate:  115200,
//	    Delimiter: "\r\n",
//	},
//	    seriallink.WithConnectionHandler(func(connected bool) {
//	        fmt.Println("connected:", connected)
//	    }),
//	    seriallink.WithMessageHandler(func(line string) {
//	        fmt.Println("received:", line)
//	    }),
//	)
//	if err := link.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer link.Stop()
//
//	// Queue a command; the worker writes it once connected.
//	link.Send("C,START")
//
//	// Host loop: dispatch whatever arrived since the last pass.
//	for running {
//	    link.Tick()
//	    // ... rest of the loop iteration
//	}
package seriallink
