package runner

import "sdpflow/internal/script"

const (
	scriptFileName  = "user_script.m"
	wrapperFileName = "run_wrapper.m"

	// ReportFileName is the fixed-name completion marker the wrapper
	// writes; its trimmed contents become the run note.
	ReportFileName = "run_report.txt"

	resultFileName = "sdp_result.mat"
)

// wrapperSource is the glue script handed to the external tool. It runs
// the synthesized script inside a fault boundary, persists the well-known
// result variable when present, always writes the report file, and forces
// a non-zero exit when the user script failed.
func wrapperSource() string {
	return `fid = fopen('` + ReportFileName + `', 'w');
run_ok = true;
try
  run('` + scriptFileName + `');
  if exist('` + script.ResultVariable + `', 'var')
    save('` + resultFileName + `', '` + script.ResultVariable + `');
    fprintf(fid, '` + script.ResultVariable + ` captured\n');
  else
    fprintf(fid, 'SDP_RESULT: none\n');
  end
catch run_err
  run_ok = false;
  disp(run_err.message);
  fprintf(fid, 'ERROR: %s\n', run_err.message);
end
fprintf(fid, 'wrapper complete\n');
fclose(fid);
if ~run_ok
  exit(1);
end
exit(0);
`
}
