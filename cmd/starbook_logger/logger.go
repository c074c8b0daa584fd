// Binary starbook_logger subscribes to the starbook server's status
// websocket and records every update in InfluxDB.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	client := influxdb2.NewClient(getenv("INFLUX_SERVER", "http://localhost:8086"), os.Getenv("INFLUX_TOKEN"))
	defer client.Close()
	// Non-blocking write client; failed writes surface on the errors
	// channel.
	writeAPI := client.WriteAPI(getenv("INFLUX_ORG", "w1xm"), getenv("INFLUX_BUCKET", "starbook"))
	go func() {
		for err := range writeAPI.Errors() {
			log.Printf("write error: %v", err)
		}
	}()
	for {
		if err := logData(writeAPI); err != nil {
			log.Print(err)
		}
		time.Sleep(1 * time.Second)
	}
}

// flattenStatus turns nested JSON into dotted field names, which is the
// shape Influx queries want.
func flattenStatus(fields map[string]interface{}, status interface{}, prefix string) {
	switch status := status.(type) {
	case map[string]interface{}:
		for k, v := range status {
			flattenStatus(fields, v, prefix+"."+k)
		}
	case []interface{}:
		for k, v := range status {
			flattenStatus(fields, v, fmt.Sprintf("%s.%d", prefix, k))
		}
	default:
		fields[prefix[1:]] = status
	}
}

func logData(writeAPI api.WriteAPI) error {
	url := getenv("STARBOOK_ADDRESS", "ws://localhost:8080/api/ws")
	defer writeAPI.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("connected to %s", url)
	for {
		var status interface{}
		if err := conn.ReadJSON(&status); err != nil {
			return err
		}
		fields := make(map[string]interface{})
		flattenStatus(fields, status, "")

		p := influxdb2.NewPoint("starbook.status",
			nil,
			fields,
			time.Now(),
		)
		writeAPI.WritePoint(p)
	}
}
