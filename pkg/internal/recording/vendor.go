package recording

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/models"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
)

// RecorderUID derives the recording identity of a session. Participant ids
// stay below 2^31, so setting the top bit keeps the two ranges apart.
func RecorderUID(sessionID uint) uint32 {
	return uint32(sessionID)&0x7fffffff | 1<<31
}

type StartRequest struct {
	ResourceID string
	Channel    string
	UID        uint32
	Token      string
	Transcode  TranscodeConfig
	Storage    StorageConfig
}

type FileManifest struct {
	Files           []models.RecordedFile
	UploadingStatus string
}

// Compiled returns the single-file rendition of the recording.
func (m FileManifest) Compiled() (models.RecordedFile, bool) {
	return CompiledFile(m.Files)
}

func (m FileManifest) Uploaded() bool {
	return m.UploadingStatus == "uploaded"
}

type QueryResult struct {
	Status int
	FileManifest
}

// Vendor is the four-phase recording protocol.
type Vendor interface {
	Acquire(ctx context.Context, channel string, uid uint32) (string, error)
	Start(ctx context.Context, req StartRequest) (string, error)
	Stop(ctx context.Context, resourceID, sid, channel string, uid uint32) (FileManifest, error)
	Query(ctx context.Context, resourceID, sid string) (QueryResult, error)
}

type VendorError struct {
	Phase  string
	Status int
	Code   int
	Reason string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("recording vendor %s failed with status %d (code %d): %s", e.Phase, e.Status, e.Code, e.Reason)
}

// IsResourceExpired reports whether the acquired resource can no longer be
// started and the sequence has to begin again from acquire.
func (e *VendorError) IsResourceExpired() bool {
	return e.Status == fiber.StatusNotFound || e.Code == 404 || e.Code == 432
}

// Client implements Vendor over the vendor's REST api.
type Client struct {
	config Config
}

func NewClient(config Config) *Client {
	return &Client{config: config.withDefaults()}
}

func (v *Client) endpoint(parts ...string) string {
	base := strings.TrimRight(v.config.BaseURL, "/")
	return fmt.Sprintf("%s/v1/apps/%s/cloud_recording/%s", base, v.config.AppID, strings.Join(parts, "/"))
}

type vendorResponse struct {
	ResourceID     string `json:"resourceId"`
	Sid            string `json:"sid"`
	Code           int    `json:"code"`
	Reason         string `json:"reason"`
	ServerResponse struct {
		Status          int                 `json:"status"`
		FileList        jsoniter.RawMessage `json:"fileList"`
		UploadingStatus string              `json:"uploadingStatus"`
	} `json:"serverResponse"`
}

func (v vendorResponse) manifest() FileManifest {
	return FileManifest{
		Files:           decodeFileList(v.ServerResponse.FileList),
		UploadingStatus: v.ServerResponse.UploadingStatus,
	}
}

// decodeFileList accepts both the list form and the single filename form
// of the manifest.
func decodeFileList(raw jsoniter.RawMessage) []models.RecordedFile {
	if len(raw) == 0 {
		return nil
	}
	var files []models.RecordedFile
	if err := jsoniter.Unmarshal(raw, &files); err == nil {
		return files
	}
	var name string
	if err := jsoniter.Unmarshal(raw, &name); err == nil && len(name) > 0 {
		return []models.RecordedFile{{FileName: name}}
	}
	return nil
}

func (v *Client) do(ctx context.Context, phase string, agent *fiber.Agent) (vendorResponse, error) {
	var resp vendorResponse
	if err := ctx.Err(); err != nil {
		fiber.ReleaseAgent(agent)
		return resp, err
	}

	timeout := v.config.RequestTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}

	agent.BasicAuth(v.config.CustomerKey, v.config.CustomerSecret).
		Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON).
		Timeout(timeout)
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return resp, err
	}

	// Bytes hands the agent back to the pool itself.
	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return resp, fmt.Errorf("recording vendor %s: %v", phase, errs[0])
	}
	_ = jsoniter.Unmarshal(body, &resp)
	if status != fiber.StatusOK {
		reason := resp.Reason
		if len(reason) == 0 {
			reason = string(body)
		}
		return resp, &VendorError{Phase: phase, Status: status, Code: resp.Code, Reason: reason}
	}
	return resp, nil
}

func (v *Client) post(ctx context.Context, phase, url string, body any) (vendorResponse, error) {
	agent := fiber.Post(url).
		JSONEncoder(jsoniter.ConfigCompatibleWithStandardLibrary.Marshal).
		JSON(body)
	return v.do(ctx, phase, agent)
}

func (v *Client) Acquire(ctx context.Context, channel string, uid uint32) (string, error) {
	resp, err := v.post(ctx, "acquire", v.endpoint("acquire"), fiber.Map{
		"cname": channel,
		"uid":   strconv.FormatUint(uint64(uid), 10),
		"clientRequest": fiber.Map{
			"resourceExpiredHour": max(1, int(v.config.ResourceTTL.Hours())),
			"scene":               0,
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.ResourceID) == 0 {
		return "", &VendorError{Phase: "acquire", Status: fiber.StatusOK, Reason: "empty resource id"}
	}
	return resp.ResourceID, nil
}

func (v *Client) Start(ctx context.Context, req StartRequest) (string, error) {
	resp, err := v.post(ctx, "start", v.endpoint("resourceid", req.ResourceID, "mode", "mix", "start"), fiber.Map{
		"cname": req.Channel,
		"uid":   strconv.FormatUint(uint64(req.UID), 10),
		"clientRequest": fiber.Map{
			"token": req.Token,
			"recordingConfig": fiber.Map{
				"channelType":       0,
				"streamTypes":       2,
				"maxIdleTime":       req.Transcode.MaxIdleTime,
				"transcodingConfig": req.Transcode,
			},
			"recordingFileConfig": fiber.Map{
				"avFileType": []string{"hls", "mp4"},
			},
			"storageConfig": fiber.Map{
				"vendor":         req.Storage.Vendor,
				"region":         req.Storage.Region,
				"bucket":         req.Storage.Bucket,
				"accessKey":      req.Storage.AccessKey,
				"secretKey":      req.Storage.SecretKey,
				"fileNamePrefix": req.Storage.Prefix,
			},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Sid) == 0 {
		return "", &VendorError{Phase: "start", Status: fiber.StatusOK, Reason: "empty sid"}
	}
	return resp.Sid, nil
}

func (v *Client) Stop(ctx context.Context, resourceID, sid, channel string, uid uint32) (FileManifest, error) {
	resp, err := v.post(ctx, "stop", v.endpoint("resourceid", resourceID, "sid", sid, "mode", "mix", "stop"), fiber.Map{
		"cname":         channel,
		"uid":           strconv.FormatUint(uint64(uid), 10),
		"clientRequest": fiber.Map{},
	})
	if err != nil {
		return FileManifest{}, err
	}
	return resp.manifest(), nil
}

func (v *Client) Query(ctx context.Context, resourceID, sid string) (QueryResult, error) {
	agent := fiber.Get(v.endpoint("resourceid", resourceID, "sid", sid, "mode", "mix", "query"))
	resp, err := v.do(ctx, "query", agent)
	if err != nil {
		return QueryResult{}, err
	}
	return QueryResult{Status: resp.ServerResponse.Status, FileManifest: resp.manifest()}, nil
}
