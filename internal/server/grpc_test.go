package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"pmt/backend/internal/audit"
	projectservice "pmt/backend/internal/project/service"
	"pmt/backend/internal/security"
	"pmt/backend/internal/store"
	taskservice "pmt/backend/internal/task/service"
	userservice "pmt/backend/internal/user/service"
)

// mockServiceRegistrar implements grpc.ServiceRegistrar for testing.
type mockServiceRegistrar struct {
	services []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	m.services = append(m.services, desc.ServiceName)
}

func TestRegisterServices(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, Deps{API: &API{}})
	assert.Equal(t, []string{UserServiceName, ProjectServiceName, TaskServiceName, "grpc.health.v1.Health"}, reg.services)

	reg = &mockServiceRegistrar{}
	RegisterServices(reg, Deps{})
	assert.Equal(t, []string{"grpc.health.v1.Health"}, reg.services)
}

type client struct {
	conn  *grpc.ClientConn
	token string
}

func (c *client) call(t *testing.T, service, method string, req, resp interface{}) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	return c.conn.Invoke(ctx, "/"+service+"/"+method, req, resp, grpc.CallContentSubtype(CodecName))
}

func startServer(t *testing.T) *client {
	t.Helper()
	log, _ := test.NewNullLogger()
	st := store.NewMemory()
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	users := userservice.New(st.Repos().Users, security.NewHasher(4), tokens, security.NewMemoryRevocationStore(), log)
	projects := projectservice.New(st, nil, log)
	tasks := taskservice.NewManager(st, nil, audit.NewRecorder(log, nil), nil, log)

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(Deps{API: NewAPI(users, projects, tasks), Auth: users, Log: log})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{conn: conn}
}

func (c *client) login(t *testing.T, email, username string) User {
	t.Helper()
	var u User
	require.NoError(t, c.call(t, UserServiceName, "Register", &RegisterRequest{Email: email, Username: username, Password: "s3cret!"}, &u))
	var res LoginResponse
	require.NoError(t, c.call(t, UserServiceName, "Login", &LoginRequest{Email: email, Password: "s3cret!"}, &res))
	c.token = res.AccessToken
	return res.User
}

func TestServer_EndToEnd(t *testing.T) {
	owner := startServer(t)
	alice := owner.login(t, "alice@example.com", "alice")

	bob := &client{conn: owner.conn}
	bobUser := bob.login(t, "bob@example.com", "bob")

	var project Project
	require.NoError(t, owner.call(t, ProjectServiceName, "CreateProject", &CreateProjectRequest{Name: "Apollo", StartDate: "2026-10-01"}, &project))
	assert.Equal(t, alice.ID, project.OwnerID)
	assert.Equal(t, "2026-10-01", project.StartDate)

	// Bob is not a member yet.
	var task Task
	err := bob.call(t, TaskServiceName, "CreateTask", &CreateTaskRequest{ProjectID: project.ID, Name: "t", DueDate: "2026-11-01", Priority: "LOW"}, &task)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	var members MembersResponse
	require.NoError(t, owner.call(t, ProjectServiceName, "AddMember", &AddMemberRequest{ProjectID: project.ID, Email: "bob@example.com"}, &members))
	require.Len(t, members.Members, 2)

	require.NoError(t, bob.call(t, TaskServiceName, "CreateTask", &CreateTaskRequest{ProjectID: project.ID, Name: "Write docs", DueDate: "2026-11-01", Priority: "LOW"}, &task))
	assert.Equal(t, "TODO", task.Status)
	assert.Nil(t, task.CompletionDate)

	require.NoError(t, owner.call(t, TaskServiceName, "AssignTask", &AssignTaskRequest{ProjectID: project.ID, TaskID: task.ID, AssigneeID: bobUser.ID}, &task))
	require.NotNil(t, task.Assignee)
	assert.Equal(t, "bob", task.Assignee.Username)

	done := "2026-10-20"
	require.NoError(t, bob.call(t, TaskServiceName, "EditTask", &EditTaskRequest{ProjectID: project.ID, TaskID: task.ID, Name: "Write docs", CompletionDate: &done, Status: "DONE"}, &task))
	assert.Equal(t, "DONE", task.Status)
	require.NotNil(t, task.CompletionDate)

	var history HistoryResponse
	require.NoError(t, owner.call(t, TaskServiceName, "TaskHistory", &TaskRequest{ProjectID: project.ID, TaskID: task.ID}, &history))
	fields := make([]string, 0, len(history.Changes))
	for _, c := range history.Changes {
		fields = append(fields, c.Field)
	}
	assert.Equal(t, []string{"assignee", "completionDate", "status"}, fields)

	err = bob.call(t, TaskServiceName, "ChangeStatus", &ChangeStatusRequest{ProjectID: project.ID, TaskID: task.ID, Status: "ARCHIVED"}, &task)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	var listed ListTasksResponse
	require.NoError(t, bob.call(t, TaskServiceName, "ListMyTasks", &Empty{}, &listed))
	assert.Len(t, listed.Tasks, 1)

	require.NoError(t, bob.call(t, UserServiceName, "Logout", &Empty{}, &Empty{}))
	err = bob.call(t, TaskServiceName, "ListMyTasks", &Empty{}, &listed)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestServer_ChangePassword(t *testing.T) {
	c := startServer(t)
	c.login(t, "carol@example.com", "carol")

	err := c.call(t, UserServiceName, "ChangePassword", &ChangePasswordRequest{OldPassword: "wrong", NewPassword: "n3w"}, &Empty{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	require.NoError(t, c.call(t, UserServiceName, "ChangePassword", &ChangePasswordRequest{OldPassword: "s3cret!", NewPassword: "n3w"}, &Empty{}))

	var res LoginResponse
	err = c.call(t, UserServiceName, "Login", &LoginRequest{Email: "carol@example.com", Password: "s3cret!"}, &res)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	require.NoError(t, c.call(t, UserServiceName, "Login", &LoginRequest{Email: "carol@example.com", Password: "n3w"}, &res))
}

func TestServer_RejectsAnonymousAndServesHealth(t *testing.T) {
	c := startServer(t)

	var task Task
	err := c.call(t, TaskServiceName, "GetTask", &TaskRequest{ProjectID: 1, TaskID: 1}, &task)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	resp, err := healthpb.NewHealthClient(c.conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestServer_BadDate(t *testing.T) {
	c := startServer(t)
	c.login(t, "alice@example.com", "alice")
	var p Project
	err := c.call(t, ProjectServiceName, "CreateProject", &CreateProjectRequest{Name: "x", StartDate: "01/10/2026"}, &p)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
