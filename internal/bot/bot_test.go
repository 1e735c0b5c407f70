package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/ecosort-bot/internal/llm"
	"github.com/raine/ecosort-bot/internal/scan"
	"github.com/raine/ecosort-bot/internal/waste"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type botApiMock struct {
	mock.Mock
}

func (m *botApiMock) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func (m *botApiMock) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	args := m.Called(c)
	return args.Get(0).(*tgbotapi.APIResponse), args.Error(1)
}

func (m *botApiMock) GetFileDirectURL(fileID string) (string, error) {
	args := m.Called(fileID)
	return args.Get(0).(string), args.Error(1)
}

// mockClassifier implements llm.Classifier for testing
type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, img waste.EncodedImage) (*waste.Result, error) {
	args := m.Called(ctx, img)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*waste.Result), args.Error(1)
}

// gatedClassifier blocks every call until release is closed.
type gatedClassifier struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedClassifier) Classify(ctx context.Context, img waste.EncodedImage) (*waste.Result, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	<-g.release
	return &waste.Result{Category: waste.CategoryHazard, ItemName: "AA Battery", Reasoning: "Contains lithium.", Confidence: 0.97}, nil
}

const testChatID = int64(42)

// newFileServer serves jpegBytes for any path.
func newFileServer(t *testing.T) *httptest.Server {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpegBytes)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func setup(t *testing.T, classifier llm.Classifier, opts Options) (*botApiMock, *Bot) {
	tg := new(botApiMock)
	tg.On("Request", mock.Anything).Return(&tgbotapi.APIResponse{Ok: true}, nil).Maybe()
	b := NewBot(tg, classifier, opts)
	t.Cleanup(b.Shutdown)
	return tg, b
}

func photoUpdate(fileID string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: testChatID},
		From: &tgbotapi.User{ID: testChatID},
		Photo: []tgbotapi.PhotoSize{
			{FileID: fileID + "-small", Width: 90, Height: 90},
			{FileID: fileID, Width: 1280, Height: 960},
		},
	}}
}

func textUpdate(text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: testChatID},
		From: &tgbotapi.User{ID: testChatID},
		Text: text,
	}}
}

func makeMessageConfig(text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(testChatID, formatReplyText(text))
	msg.ParseMode = tgbotapi.ModeMarkdown
	return msg
}

// expectReplyContaining registers a Send expectation and returns a channel
// closed once it is met.
func expectReplyContaining(tg *botApiMock, substrings ...string) chan struct{} {
	ch := make(chan struct{})
	tg.On("Send", mock.MatchedBy(func(msg tgbotapi.MessageConfig) bool {
		for _, s := range substrings {
			if !strings.Contains(msg.Text, s) {
				return false
			}
		}
		return true
	})).Return(tgbotapi.Message{}, nil).Once().Run(func(mock.Arguments) { close(ch) })
	return ch
}

func waitFor(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
	}
}

func TestHandleUpdate_Start(t *testing.T) {
	tg, b := setup(t, new(mockClassifier), Options{})
	tg.On("Send", makeMessageConfig(MsgStart)).Return(tgbotapi.Message{}, nil).Once()

	b.handleUpdateSync(context.Background(), textUpdate("/start"))
	tg.AssertExpectations(t)
}

func TestHandleUpdate_PlainTextIsHint(t *testing.T) {
	tg, b := setup(t, new(mockClassifier), Options{})
	tg.On("Send", makeMessageConfig(MsgUnknownInput)).Return(tgbotapi.Message{}, nil).Once()

	b.handleUpdateSync(context.Background(), textUpdate("hello"))
	tg.AssertExpectations(t)
}

func TestHandleUpdate_PhotoIsClassified(t *testing.T) {
	ts := newFileServer(t)
	classifier := new(mockClassifier)
	want := waste.EncodeImage(jpegBytes, "image/jpeg")
	classifier.On("Classify", mock.Anything, want).Return(&waste.Result{
		Category:   waste.CategoryCompost,
		ItemName:   "Greasy Pizza Box",
		Reasoning:  "Oil stains make it compost.",
		Confidence: 0.88,
	}, nil).Once()

	tg, b := setup(t, classifier, Options{})
	tg.On("GetFileDirectURL", "photo-1").Return(ts.URL+"/photo-1.jpg", nil).Once()
	tg.On("Send", makeMessageConfig(MsgAnalyzing)).Return(tgbotapi.Message{}, nil).Once()
	result := expectReplyContaining(tg, "COMPOST", "Dispose in Compost/Organic Bin", "Greasy Pizza Box", "88%")

	b.handleUpdateSync(context.Background(), photoUpdate("photo-1"))
	waitFor(t, result)

	session := b.state.getUserSession(testChatID)
	assert.Eventually(t, func() bool { return session.State().Status == scan.StatusComplete }, time.Second, 10*time.Millisecond)
	classifier.AssertExpectations(t)
	tg.AssertExpectations(t)
}

func TestHandleUpdate_ClassificationFailure(t *testing.T) {
	ts := newFileServer(t)
	classifier := new(mockClassifier)
	classifier.On("Classify", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset by peer")).Once()

	tg, b := setup(t, classifier, Options{})
	tg.On("GetFileDirectURL", "photo-1").Return(ts.URL, nil)
	tg.On("Send", makeMessageConfig(MsgAnalyzing)).Return(tgbotapi.Message{}, nil).Once()
	failed := expectReplyContaining(tg, llm.FailureMessage, "/next")

	b.handleUpdateSync(context.Background(), photoUpdate("photo-1"))
	waitFor(t, failed)
	classifier.AssertExpectations(t)
}

func TestHandleUpdate_DownloadFailureSkipsClassifier(t *testing.T) {
	classifier := new(mockClassifier)
	tg, b := setup(t, classifier, Options{})
	tg.On("GetFileDirectURL", "photo-1").Return("", fmt.Errorf("file not found")).Once()
	failed := expectReplyContaining(tg, MsgCaptureFailed)

	b.handleUpdateSync(context.Background(), photoUpdate("photo-1"))
	waitFor(t, failed)

	st := b.state.getUserSession(testChatID).State()
	assert.Equal(t, scan.StatusError, st.Status)
	assert.Nil(t, st.Image)
	classifier.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
}

func TestHandleUpdate_BusyWhileAnalyzing(t *testing.T) {
	ts := newFileServer(t)
	classifier := &gatedClassifier{started: make(chan struct{}), release: make(chan struct{})}

	tg, b := setup(t, classifier, Options{})
	tg.On("GetFileDirectURL", mock.Anything).Return(ts.URL, nil)
	tg.On("Send", makeMessageConfig(MsgAnalyzing)).Return(tgbotapi.Message{}, nil).Once()
	tg.On("Send", makeMessageConfig(MsgStillAnalyzing)).Return(tgbotapi.Message{}, nil).Twice()

	b.handleUpdateSync(context.Background(), photoUpdate("photo-1"))
	<-classifier.started

	b.handleUpdateSync(context.Background(), photoUpdate("photo-2"))
	b.handleUpdateSync(context.Background(), textUpdate("/next"))

	result := expectReplyContaining(tg, "HAZARD", "AA Battery")
	close(classifier.release)
	waitFor(t, result)

	assert.Equal(t, int32(1), classifier.calls.Load())
	tg.AssertExpectations(t)
}

func TestHandleUpdate_PhotoAfterResultScansNext(t *testing.T) {
	ts := newFileServer(t)
	classifier := new(mockClassifier)
	classifier.On("Classify", mock.Anything, mock.Anything).
		Return(&waste.Result{Category: waste.CategoryTrash, ItemName: "Chip Bag", Reasoning: "Metallized film.", Confidence: 0.9}, nil).Twice()

	tg, b := setup(t, classifier, Options{})
	tg.On("GetFileDirectURL", mock.Anything).Return(ts.URL, nil)
	tg.On("Send", makeMessageConfig(MsgAnalyzing)).Return(tgbotapi.Message{}, nil).Twice()

	first := expectReplyContaining(tg, "Chip Bag")
	b.handleUpdateSync(context.Background(), photoUpdate("photo-1"))
	waitFor(t, first)

	second := expectReplyContaining(tg, "Chip Bag")
	b.handleUpdateSync(context.Background(), photoUpdate("photo-2"))
	waitFor(t, second)

	classifier.AssertExpectations(t)
}

func TestHandleUpdate_NextResetsToIdle(t *testing.T) {
	tg, b := setup(t, new(mockClassifier), Options{})
	session := b.state.getUserSession(testChatID)
	_, err := session.scanner.CaptureFailed(MsgCaptureFailed)
	require.NoError(t, err)

	tg.On("Send", makeMessageConfig(MsgNextReady)).Return(tgbotapi.Message{}, nil).Once()
	tg.On("Send", makeMessageConfig(MsgStatusIdle)).Return(tgbotapi.Message{}, nil).Once()

	b.handleUpdateSync(context.Background(), textUpdate("/next"))
	b.handleUpdateSync(context.Background(), textUpdate("/status"))

	assert.Equal(t, scan.State{Status: scan.StatusIdle}, session.State())
	tg.AssertExpectations(t)
}

func TestHandleUpdate_DocumentMustBeImage(t *testing.T) {
	tg, b := setup(t, new(mockClassifier), Options{})
	tg.On("Send", makeMessageConfig(MsgNotAnImage)).Return(tgbotapi.Message{}, nil).Once()

	b.handleUpdateSync(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: testChatID},
		Document: &tgbotapi.Document{FileID: "doc", MimeType: "application/pdf"},
	}})
	tg.AssertExpectations(t)
}

func TestHandleUpdate_AllowList(t *testing.T) {
	tg, b := setup(t, new(mockClassifier), Options{AllowedChatIDs: []int64{7}})

	b.handleUpdateSync(context.Background(), textUpdate("/start"))

	tg.AssertNotCalled(t, "Send", mock.Anything)
	b.state.mu.Lock()
	assert.Empty(t, b.state.sessions)
	b.state.mu.Unlock()
}

func TestImageFileID(t *testing.T) {
	id, ok := imageFileID(&tgbotapi.Message{Photo: []tgbotapi.PhotoSize{{FileID: "s"}, {FileID: "m"}, {FileID: "l"}}})
	assert.True(t, ok)
	assert.Equal(t, "l", id)

	id, ok = imageFileID(&tgbotapi.Message{Document: &tgbotapi.Document{FileID: "d", MimeType: "image/png"}})
	assert.True(t, ok)
	assert.Equal(t, "d", id)

	_, ok = imageFileID(&tgbotapi.Message{Text: "hi"})
	assert.False(t, ok)
}

func TestFormatState(t *testing.T) {
	text := formatState(scan.State{
		Status: scan.StatusComplete,
		Result: &waste.Result{Category: waste.CategoryRecycle, ItemName: "Soda_Can", Reasoning: "Clean *metal*.", Confidence: 0.914},
	})
	assert.Contains(t, text, "♻️ *RECYCLE*")
	assert.Contains(t, text, "Dispose in Recycling Bin")
	assert.Contains(t, text, `Soda\_Can`)
	assert.Contains(t, text, "91%")
	assert.Contains(t, text, `Clean \*metal\*.`)

	assert.Equal(t, MsgStatusAnalyzing, formatState(scan.State{Status: scan.StatusAnalyzing}))
	assert.Equal(t, MsgStatusIdle, formatState(scan.State{}))
}

func TestParseCommand(t *testing.T) {
	cmd, args := parseCommand("/next@ecosort_bot now")
	assert.Equal(t, "/next", cmd)
	assert.Equal(t, []string{"now"}, args)
}
