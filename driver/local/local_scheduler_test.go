package local

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tsmdev/tsm/driver"
)

func writeShellScript(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	content := "#!/bin/bash\n" + strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0755); err != nil {
		t.Fatalf("cannot write %s: %v", name, err)
	}
}

func waitForTerminal(t *testing.T, scheduler *LocalScheduler, appID string) driver.AppState {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := scheduler.Describe(appID)
		if err != nil {
			t.Fatalf("describe failed: %v", err)
		}
		if resp == nil {
			t.Fatalf("app %s disappeared while waiting for terminal state", appID)
		}
		if resp.State.IsTerminal() {
			return resp.State
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("app %s did not reach a terminal state in time", appID)
	return driver.UNSUBMITTED
}

func testScheduler(t *testing.T, cacheSize int) (*LocalScheduler, *driver.Container, string) {
	t.Helper()
	testDir := t.TempDir()
	writeShellScript(t, testDir, "touch.sh", "touch $1")
	writeShellScript(t, testDir, "fail.sh", "exit 1")
	writeShellScript(t, testDir, "sleep.sh", "sleep $1")
	writeShellScript(t, testDir, "sleep_touch.sh", `sleep "$1"`, `touch "$2"`)
	writeShellScript(t, testDir, "echoarg.sh", `echo -n "$2" > "$1"`)
	writeShellScript(t, testDir, "echoenv.sh", `echo -n "$ENV_VAR_1" > "$1"`)
	writeShellScript(t, testDir, "append.sh", `echo run >> "$1"`)

	scheduler := NewLocalScheduler(NewLocalDirectoryImageFetcher(), cacheSize, nil)
	container := driver.NewContainer(testDir).Require(driver.NewResources(1, 0, 1024))
	return scheduler, container, testDir
}

func TestSubmitAndDescribeSucceeded(t *testing.T) {
	scheduler, container, testDir := testScheduler(t, NoCacheLimit)
	testFile := filepath.Join(testDir, "test_file")

	role := driver.NewRole("touch").Runs("touch.sh", testFile).On(container)
	app := driver.NewApplication("toucher").Of(role)

	appID, err := scheduler.Submit(app, driver.HEADLESS)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if state := waitForTerminal(t, scheduler, appID); state != driver.SUCCEEDED {
		t.Errorf("expected SUCCEEDED, got %v", state)
	}
	if _, err := os.Stat(testFile); err != nil {
		t.Errorf("expected %s to exist: %v", testFile, err)
	}
}

func TestDescribeFailed(t *testing.T) {
	scheduler, container, _ := testScheduler(t, NoCacheLimit)

	role := driver.NewRole("fail").Runs("fail.sh").On(container)
	app := driver.NewApplication("failer").Of(role)

	appID, err := scheduler.Submit(app, driver.HEADLESS)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if state := waitForTerminal(t, scheduler, appID); state != driver.FAILED {
		t.Errorf("expected FAILED, got %v", state)
	}
}

func TestDescribeReportsRoleStatuses(t *testing.T) {
	scheduler, container, _ := testScheduler(t, NoCacheLimit)

	ok := driver.NewRole("ok").Runs("touch.sh", "/dev/null").On(container)
	bad := driver.NewRole("bad").Runs("fail.sh").On(container)
	app := driver.NewApplication("mixed").Of(ok, bad)

	appID, err := scheduler.Submit(app, driver.HEADLESS)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if state := waitForTerminal(t, scheduler, appID); state != driver.FAILED {
		t.Errorf("expected aggregate FAILED, got %v", state)
	}

	resp, _ := scheduler.Describe(appID)
	if resp.NumRestarts != 0 {
		t.Errorf("local processes are never restarted, got NumRestarts %d", resp.NumRestarts)
	}
	if len(resp.RoleStatuses) != 2 {
		t.Fatalf("expected 2 role statuses, got %v", resp.RoleStatuses)
	}
	if resp.RoleStatuses[0].Role != "ok" || resp.RoleStatuses[0].State != driver.SUCCEEDED {
		t.Errorf("unexpected status for role ok: %+v", resp.RoleStatuses[0])
	}
	if resp.RoleStatuses[1].Role != "bad" || resp.RoleStatuses[1].State != driver.FAILED {
		t.Errorf("unexpected status for role bad: %+v", resp.RoleStatuses[1])
	}
}

func TestDescribeUnknownApp(t *testing.T) {
	scheduler, _, _ := testScheduler(t, NoCacheLimit)
	resp, err := scheduler.Describe("unknown_app_id")
	if err != nil {
		t.Fatalf("describe failed: %v", err)
	}
	if resp != nil {
		t.Errorf("expected nil response for unknown app, got %+v", resp)
	}
}

func TestCancel(t *testing.T) {
	scheduler, container, _ := testScheduler(t, NoCacheLimit)

	role := driver.NewRole("sleep").Runs("sleep.sh", "60").On(container)
	app := driver.NewApplication("sleeper").Of(role)

	appID, err := scheduler.Submit(app, driver.HEADLESS)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	resp, _ := scheduler.Describe(appID)
	if resp.State != driver.RUNNING {
		t.Fatalf("expected RUNNING before cancel, got %v", resp.State)
	}

	if err := scheduler.Cancel(appID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	resp, _ = scheduler.Describe(appID)
	if resp.State != driver.CANCELLED {
		t.Errorf("expected CANCELLED after cancel, got %v", resp.State)
	}

	// cancel is idempotent on terminal apps
	if err := scheduler.Cancel(appID); err != nil {
		t.Errorf("second cancel failed: %v", err)
	}
	resp, _ = scheduler.Describe(appID)
	if resp.State != driver.CANCELLED {
		t.Errorf("expected CANCELLED to latch, got %v", resp.State)
	}
}

func TestCancelAfterNaturalCompletion(t *testing.T) {
	scheduler, container, _ := testScheduler(t, NoCacheLimit)

	role := driver.NewRole("touch").Runs("touch.sh", "/dev/null").On(container)
	app := driver.NewApplication("toucher").Of(role)

	appID, err := scheduler.Submit(app, driver.HEADLESS)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if state := waitForTerminal(t, scheduler, appID); state != driver.SUCCEEDED {
		t.Fatalf("expected SUCCEEDED, got %v", state)
	}

	if err := scheduler.Cancel(appID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	resp, _ := scheduler.Describe(appID)
	if resp.State != driver.SUCCEEDED {
		t.Errorf("cancel must not overwrite a terminal state, got %v", resp.State)
	}
}

func TestEvictionByInsertionOrder(t *testing.T) {
	scheduler, container, _ := testScheduler(t, 1)

	role := driver.NewRole("touch").Runs("touch.sh", "/dev/null").On(container)
	app := driver.NewApplication("toucher").Of(role)

	appID1, err := scheduler.Submit(app, driver.HEADLESS)
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	waitForTerminal(t, scheduler, appID1)

	appID2, err := scheduler.Submit(app, driver.HEADLESS)
	if err != nil {
		t.Fatalf("second submit failed: %v", err)
	}

	resp, err := scheduler.Describe(appID1)
	if err != nil || resp != nil {
		t.Errorf("expected first app to be evicted, got %+v, %v", resp, err)
	}
	ids, _ := scheduler.List()
	if len(ids) != 1 || ids[0] != appID2 {
		t.Errorf("expected list to contain only %s, got %v", appID2, ids)
	}
}

func TestDescribeReportsRunMode(t *testing.T) {
	scheduler, container, _ := testScheduler(t, NoCacheLimit)

	role := driver.NewRole("touch").Runs("touch.sh", "/dev/null").On(container)
	app := driver.NewApplication("managed").Of(role)

	appID, err := scheduler.Submit(app, driver.MANAGED)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	resp, err := scheduler.Describe(appID)
	if err != nil {
		t.Fatalf("describe failed: %v", err)
	}
	if resp.Mode != driver.MANAGED {
		t.Errorf("expected mode MANAGED, got %v", resp.Mode)
	}
}

func TestEvictionLeavesLiveProcessesRunning(t *testing.T) {
	scheduler, container, testDir := testScheduler(t, 1)
	marker := filepath.Join(testDir, "survived_eviction")

	slow := driver.NewRole("slow").Runs("sleep_touch.sh", "2", marker).On(container)
	appID1, err := scheduler.Submit(driver.NewApplication("survivor").Of(slow), driver.HEADLESS)
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	// evict the first record while its process is still sleeping
	fast := driver.NewRole("touch").Runs("touch.sh", "/dev/null").On(container)
	appID2, err := scheduler.Submit(driver.NewApplication("evictor").Of(fast), driver.HEADLESS)
	if err != nil {
		t.Fatalf("second submit failed: %v", err)
	}

	resp, err := scheduler.Describe(appID1)
	if err != nil || resp != nil {
		t.Fatalf("expected first app to be evicted, got %+v, %v", resp, err)
	}
	if _, err := os.Stat(marker); err == nil {
		t.Fatal("marker written before eviction, test cannot observe the invariant")
	}

	// the evicted app's process must run to completion and write its marker
	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, err := os.Stat(marker); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("evicted app's process did not survive to write its marker")
		}
		time.Sleep(50 * time.Millisecond)
	}
	waitForTerminal(t, scheduler, appID2)
}

func TestSubmitFetchFailureIsAllOrNothing(t *testing.T) {
	scheduler, container, testDir := testScheduler(t, NoCacheLimit)
	testFile := filepath.Join(testDir, "must_not_exist")

	good := driver.NewRole("touch").Runs("touch.sh", testFile).On(container)
	badContainer := driver.NewContainer("relative/image").Require(driver.NewResources(1, 0, 1024))
	bad := driver.NewRole("bad").Runs("touch.sh", "/dev/null").On(badContainer)
	app := driver.NewApplication("half_bad").Of(good, bad)

	_, err := scheduler.Submit(app, driver.HEADLESS)
	if err == nil {
		t.Fatal("expected submit to fail on unfetchable image")
	}
	var fetchErr *driver.ImageFetchError
	if !errors.As(err, &fetchErr) {
		t.Errorf("expected *ImageFetchError, got %T: %v", err, err)
	}

	// no process may have been spawned for the good role
	time.Sleep(200 * time.Millisecond)
	if _, err := os.Stat(testFile); !os.IsNotExist(err) {
		t.Errorf("expected no replica to have run, but %s exists", testFile)
	}
	ids, _ := scheduler.List()
	if len(ids) != 0 {
		t.Errorf("expected no app record after failed submit, got %v", ids)
	}
}

func TestMacroResolution(t *testing.T) {
	scheduler, container, testDir := testScheduler(t, NoCacheLimit)
	outFile := filepath.Join(testDir, "resolved_app_id")

	role := driver.NewRole("echo").Runs("echoarg.sh", outFile, driver.Macros.AppID).On(container)
	app := driver.NewApplication("echoer").Of(role)

	appID, err := scheduler.Submit(app, driver.HEADLESS)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if state := waitForTerminal(t, scheduler, appID); state != driver.SUCCEEDED {
		t.Fatalf("expected SUCCEEDED, got %v", state)
	}

	content, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("cannot read %s: %v", outFile, err)
	}
	if string(content) != appID {
		t.Errorf("expected app id macro to resolve to %q, got %q", appID, string(content))
	}
}

func TestEnvPassedToReplicas(t *testing.T) {
	scheduler, container, testDir := testScheduler(t, NoCacheLimit)
	outFile := filepath.Join(testDir, "env_value")

	role := driver.NewRole("env").
		Runs("echoenv.sh", outFile).
		WithEnv(map[string]string{"ENV_VAR_1": "FOOBAR"}).
		On(container)
	app := driver.NewApplication("env_app").Of(role)

	appID, err := scheduler.Submit(app, driver.HEADLESS)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if state := waitForTerminal(t, scheduler, appID); state != driver.SUCCEEDED {
		t.Fatalf("expected SUCCEEDED, got %v", state)
	}

	content, _ := os.ReadFile(outFile)
	if string(content) != "FOOBAR" {
		t.Errorf("expected env var FOOBAR, got %q", string(content))
	}
}

func TestReplicasAllRun(t *testing.T) {
	scheduler, container, testDir := testScheduler(t, NoCacheLimit)
	outFile := filepath.Join(testDir, "runs")

	role := driver.NewRole("append").Runs("append.sh", outFile).On(container).Replicas(3)
	app := driver.NewApplication("replicated").Of(role)

	appID, err := scheduler.Submit(app, driver.HEADLESS)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if state := waitForTerminal(t, scheduler, appID); state != driver.SUCCEEDED {
		t.Fatalf("expected SUCCEEDED, got %v", state)
	}

	content, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("cannot read %s: %v", outFile, err)
	}
	if lines := strings.Count(string(content), "\n"); lines != 3 {
		t.Errorf("expected 3 replica runs, got %d", lines)
	}
}
