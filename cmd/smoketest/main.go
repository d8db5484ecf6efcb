// Command smoketest checks the deployment's moving parts: Redis,
// the upstream energy-data API and the Kafka invalidation topic. It is
// meant for compose environments and CI, not production probing.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/redis/go-redis/v9"
)

func getenv(key, def string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return def
}

func testRedis(ctx context.Context, addr string) error {
	fmt.Println("Redis test")
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 2 * time.Second,
	})
	defer func() { _ = client.Close() }()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	if err := client.Set(ctx, "energy:smoketest", "ok", 30*time.Second).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	val, err := client.Get(ctx, "energy:smoketest").Result()
	if err != nil {
		return fmt.Errorf("redis get: %w", err)
	}
	fmt.Println("redis GET energy:smoketest:", val)
	return nil
}

func testUpstream(baseURL string) error {
	fmt.Println("Upstream test")

	// ask for the last hour of emissions data, capped to a few rows
	end := time.Now().UTC().Truncate(time.Hour)
	start := end.Add(-time.Hour)
	q := url.Values{}
	q.Set("start", start.Format("2006-01-02T15:04"))
	q.Set("end", end.Format("2006-01-02T15:04"))
	q.Set("limit", "5")

	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/CO2Emis")
	if err != nil {
		return fmt.Errorf("bad upstream URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	u.RawQuery = q.Encode()

	resp, err := http.Get(u.String())
	if err != nil {
		return fmt.Errorf("http get upstream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(b))
	}

	// Only read a small part of the body (responses can be large)
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	fmt.Println("upstream sample:")
	fmt.Println(string(body))
	return nil
}

func testKafka(brokers []string, topic string) error {
	fmt.Println("Kafka test")

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Version = sarama.V3_6_0_0
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return fmt.Errorf("producer create: %w", err)
	}
	defer func() { _ = prod.Close() }()

	payload := map[string]any{
		"version":  1,
		"op":       "refresh",
		"resource": "emissions",
		"region":   "dk1",
		"ts":       time.Now().UTC().Format(time.RFC3339Nano),
		"source":   "smoketest",
	}

	msgBytes, _ := json.Marshal(payload)
	_, _, err = prod.SendMessage(&sarama.ProducerMessage{
		Topic: topic, Value: sarama.ByteEncoder(msgBytes),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	fmt.Println("produced one message")

	consumer, err := sarama.NewConsumer(brokers, cfg)
	if err != nil {
		return fmt.Errorf("consumer create: %w", err)
	}
	defer func() { _ = consumer.Close() }()

	pc, err := consumer.ConsumePartition(topic, 0, sarama.OffsetNewest)
	if err != nil {
		pc, err = consumer.ConsumePartition(topic, 0, sarama.OffsetOldest)
		if err != nil {
			return fmt.Errorf("consume partition: %w", err)
		}
	}
	defer func() { _ = pc.Close() }()

	select {
	case m := <-pc.Messages():
		fmt.Println("consumed:", string(m.Value))
	case <-time.After(5 * time.Second):
		fmt.Println("no message consumed (timeout)")
	}

	return nil
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	redisAddr := getenv("REDIS_ADDR", "localhost:6379")
	upstreamURL := getenv("UPSTREAM_URL", "https://api.energidataservice.dk/dataset")
	brokers := strings.Split(getenv("KAFKA_BROKERS", "localhost:9092"), ",")
	topic := getenv("KAFKA_TOPIC", "energy-invalidation")

	if err := testRedis(ctx, redisAddr); err != nil {
		fmt.Println("Redis error:", err)
		return
	}
	if err := testUpstream(upstreamURL); err != nil {
		fmt.Println("Upstream error:", err)
		return
	}
	if err := testKafka(brokers, topic); err != nil {
		fmt.Println("Kafka error:", err)
		return
	}
	fmt.Println("All tests completed")
}
