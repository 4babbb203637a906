package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/okian/clutch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(err error, complete bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type message struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	hang         bool
	err          error
	messages     []message
	disconnected bool
	connect      mqtt.Token
}

func (c *fakeClient) Connect() mqtt.Token { return c.connect }

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload any) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hang {
		return newToken(nil, false)
	}
	if c.err == nil {
		c.messages = append(c.messages, message{topic: topic, qos: qos, payload: payload.([]byte)})
	}
	return newToken(c.err, true)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnected = true
}

func completed() model.Notification {
	return model.Notification{
		Type:                  model.NotificationReportReady,
		SessionID:             "sess-1",
		SubjectID:             "athlete-7",
		Status:                model.SessionCompleted,
		ChampionshipReadiness: 88.5,
		Level:                 "elite",
	}
}

func TestMQTT(t *testing.T) {
	ctx := context.Background()

	Convey("Given a connected client", t, func() {
		client := &fakeClient{connected: true}
		n := NewMQTT(client, MQTTConfig{TopicPrefix: "academy/"}, nil)

		Convey("When a report notification is sent", func() {
			So(n.Notify(ctx, completed()), ShouldBeNil)

			Convey("Then it is published as JSON with QoS 1 on the session topic", func() {
				So(client.messages, ShouldHaveLength, 1)
				msg := client.messages[0]
				So(msg.topic, ShouldEqual, "academy/sessions/sess-1/report_ready")
				So(msg.qos, ShouldEqual, byte(1))

				var got model.Notification
				So(json.Unmarshal(msg.payload, &got), ShouldBeNil)
				So(got.ChampionshipReadiness, ShouldEqual, 88.5)
				So(n.Stats().Published[model.NotificationReportReady], ShouldEqual, uint64(1))
			})
		})

		Convey("When reports for different sessions are sent", func() {
			other := completed()
			other.SessionID = "sess-2"
			So(n.Notify(ctx, completed()), ShouldBeNil)
			So(n.Notify(ctx, other), ShouldBeNil)

			Convey("Then they share one counter per notification type", func() {
				published := n.Stats().Published
				So(published, ShouldHaveLength, 1)
				So(published[model.NotificationReportReady], ShouldEqual, uint64(2))
			})
		})

		Convey("When the broker rejects the publish", func() {
			client.err = errors.New("not authorized")
			err := n.Notify(ctx, completed())

			Convey("Then the error is returned and counted", func() {
				So(err, ShouldNotBeNil)
				So(n.Stats().Errors, ShouldEqual, uint64(1))
			})
		})

		Convey("When the broker never acknowledges", func() {
			client.hang = true
			n = NewMQTT(client, MQTTConfig{Timeout: 10 * time.Millisecond}, nil)

			So(errors.Is(n.Notify(ctx, completed()), ErrPublishTimeout), ShouldBeTrue)
		})

		Convey("When closed", func() {
			So(n.Close(), ShouldBeNil)
			So(client.disconnected, ShouldBeTrue)
			So(errors.Is(n.Notify(ctx, completed()), ErrNotConnected), ShouldBeTrue)
		})
	})

	Convey("Given the default prefix", t, func() {
		n := NewMQTT(&fakeClient{connected: true}, MQTTConfig{}, nil)
		So(n.Topic(model.Notification{SessionID: "x", Type: model.NotificationSessionFailed}), ShouldEqual, "clutch/sessions/x/session_failed")
	})
}

func TestAwaitConnect(t *testing.T) {
	Convey("Given a broker that never answers", t, func() {
		client := &fakeClient{connect: newToken(nil, false)}

		Convey("When the connect timeout passes", func() {
			err := awaitConnect(context.Background(), client, 10*time.Millisecond)

			Convey("Then the background retries are stopped", func() {
				So(errors.Is(err, ErrConnectTimeout), ShouldBeTrue)
				So(client.disconnected, ShouldBeTrue)
			})
		})

		Convey("When the caller gives up", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := awaitConnect(ctx, client, time.Minute)

			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(client.disconnected, ShouldBeTrue)
		})
	})

	Convey("Given a broker that refuses the connection", t, func() {
		client := &fakeClient{connect: newToken(errors.New("bad credentials"), true)}
		err := awaitConnect(context.Background(), client, time.Minute)

		So(err, ShouldNotBeNil)
		So(client.disconnected, ShouldBeTrue)
	})

	Convey("Given a broker that accepts the connection", t, func() {
		client := &fakeClient{connect: newToken(nil, true)}

		So(awaitConnect(context.Background(), client, time.Minute), ShouldBeNil)
		So(client.disconnected, ShouldBeFalse)
	})
}

func TestMulti(t *testing.T) {
	Convey("Given a fan-out with a failing sink in the middle", t, func() {
		var got []string
		ok := Func(func(_ context.Context, n model.Notification) error { //nolint:gocritic // hugeParam
			got = append(got, n.SessionID)
			return nil
		})
		bad := Func(func(context.Context, model.Notification) error { return errors.New("sink down") }) //nolint:gocritic // hugeParam
		m := NewMulti(ok, nil, bad, NewLog(nil), ok)
		So(m.Len(), ShouldEqual, 4)

		err := m.Notify(context.Background(), completed())

		Convey("Then every sink is tried and the failure is reported", func() {
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "sink down")
			So(got, ShouldResemble, []string{"sess-1", "sess-1"})
		})
	})

	Convey("Given only healthy sinks", t, func() {
		So(NewMulti(NewLog(nil)).Notify(context.Background(), completed()), ShouldBeNil)
	})
}
